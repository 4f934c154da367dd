package patchset

import (
	"errors"
	"fmt"

	"github.com/chazu/smalimod/smali"
)

// Anchor describes the entry an edit is positioned against. Exactly one
// field is set. The first matching entry in the method body wins.
type Anchor struct {
	Instruction     string `toml:"instruction" json:"instruction,omitempty"`
	Prefix          string `toml:"prefix" json:"prefix,omitempty"`
	Directive       string `toml:"directive" json:"directive,omitempty"`
	DirectivePrefix string `toml:"directive-prefix" json:"directive-prefix,omitempty"`
	Label           string `toml:"label" json:"label,omitempty"`
	Text            string `toml:"text" json:"text,omitempty"`
	Kind            string `toml:"kind" json:"kind,omitempty"`
}

// fields returns the (key, value) pairs that are set.
func (a *Anchor) fields() [][2]string {
	var out [][2]string
	for _, kv := range [][2]string{
		{"instruction", a.Instruction},
		{"prefix", a.Prefix},
		{"directive", a.Directive},
		{"directive-prefix", a.DirectivePrefix},
		{"label", a.Label},
		{"text", a.Text},
		{"kind", a.Kind},
	} {
		if kv[1] != "" {
			out = append(out, kv)
		}
	}
	return out
}

func (a *Anchor) validate() error {
	set := a.fields()
	switch len(set) {
	case 0:
		return errors.New("no match key set")
	case 1:
	default:
		return fmt.Errorf("%d match keys set, want exactly one", len(set))
	}
	if a.Kind != "" {
		if _, ok := smali.ParseKind(a.Kind); !ok {
			return fmt.Errorf("unknown entry kind %q", a.Kind)
		}
	}
	return nil
}

// Predicate converts the anchor into a locator predicate.
func (a *Anchor) Predicate() (smali.Predicate, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	switch {
	case a.Instruction != "":
		return smali.InstructionEquals(a.Instruction), nil
	case a.Prefix != "":
		return smali.InstructionHasPrefix(a.Prefix), nil
	case a.Directive != "":
		return smali.DirectiveEquals(a.Directive), nil
	case a.DirectivePrefix != "":
		return smali.DirectiveHasPrefix(a.DirectivePrefix), nil
	case a.Label != "":
		return smali.LabelNamed(a.Label), nil
	case a.Text != "":
		return smali.TextEquals(a.Text), nil
	default:
		kind, _ := smali.ParseKind(a.Kind)
		return smali.OfKind(kind), nil
	}
}

// String describes the anchor for diagnostics, e.g. `prefix "return"`.
func (a *Anchor) String() string {
	if a == nil {
		return "<none>"
	}
	set := a.fields()
	if len(set) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("%s %q", set[0][0], set[0][1])
}
