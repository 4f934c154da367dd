package smali

import "strings"

// Predicate selects entries for Locate.
type Predicate func(Entry) bool

// Locate returns the index of the first entry in entries that satisfies
// match. The scan runs left to right and stops at the first hit; later
// matches are never reported. When nothing matches it returns (-1, false).
func Locate(entries []Entry, match Predicate) (int, bool) {
	for i, e := range entries {
		if match(e) {
			return i, true
		}
	}
	return -1, false
}

// Locate runs Locate over the method body.
func (m *Method) Locate(match Predicate) (int, bool) {
	return Locate(m.Instructions, match)
}

// Method returns the first method named name. Overloads are not told apart
// by signature.
func (c *Class) Method(name string) (*Method, bool) {
	if i := c.MethodIndex(name); i >= 0 {
		return c.Methods[i], true
	}
	return nil, false
}

// MethodIndex returns the position of the first method named name, or -1.
func (c *Class) MethodIndex(name string) int {
	for i, m := range c.Methods {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

// InstructionEquals matches an Instruction whose text is exactly text.
func InstructionEquals(text string) Predicate {
	return func(e Entry) bool {
		i, ok := e.(Instruction)
		return ok && i.Text == text
	}
}

// InstructionHasPrefix matches an Instruction whose text starts with prefix.
func InstructionHasPrefix(prefix string) Predicate {
	return func(e Entry) bool {
		i, ok := e.(Instruction)
		return ok && strings.HasPrefix(i.Text, prefix)
	}
}

// DirectiveEquals matches a Directive whose text is exactly text.
func DirectiveEquals(text string) Predicate {
	return func(e Entry) bool {
		d, ok := e.(Directive)
		return ok && d.Text == text
	}
}

// DirectiveHasPrefix matches a Directive whose text starts with prefix.
func DirectiveHasPrefix(prefix string) Predicate {
	return func(e Entry) bool {
		d, ok := e.(Directive)
		return ok && strings.HasPrefix(d.Text, prefix)
	}
}

// LabelNamed matches the Label name (given without the leading colon).
func LabelNamed(name string) Predicate {
	return func(e Entry) bool {
		l, ok := e.(Label)
		return ok && l.Name == name
	}
}

// TextEquals matches any entry whose rendered line equals text.
func TextEquals(text string) Predicate {
	return func(e Entry) bool {
		return e.String() == text
	}
}

// OfKind matches every entry of the given kind.
func OfKind(kind EntryKind) Predicate {
	return func(e Entry) bool {
		return e.Kind() == kind
	}
}

// Any matches every entry.
func Any() Predicate {
	return func(Entry) bool { return true }
}
