package patch

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/chazu/smalimod/patchset"
	"github.com/chazu/smalimod/smali"
)

// Func patches one parsed class in place.
type Func func(*smali.Class) error

// Target pairs a project-relative class file with the function that
// patches it.
type Target struct {
	Path  string
	Patch Func
	Edits int
}

// step is one compiled edit.
type step func(*smali.Class) error

// CompileSet compiles every class and asset of a patch set, in descriptor
// order.
func CompileSet(set *patchset.Set) ([]Target, []Asset, error) {
	targets := make([]Target, 0, len(set.Classes))
	for _, c := range set.Classes {
		t, err := Compile(set, c)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, t)
	}
	assets, err := CompileAssets(set)
	if err != nil {
		return nil, nil, err
	}
	return targets, assets, nil
}

// Compile turns one class descriptor into a Target. Fragments are read and
// parsed here, so a bad fragment fails before any class is touched.
func Compile(set *patchset.Set, c patchset.Class) (Target, error) {
	path := set.ClassPath(c)
	steps := make([]step, 0, len(c.Edits))
	for _, e := range c.Edits {
		st, err := compileEdit(e, set.Source())
		if err != nil {
			return Target{}, withPath(err, path)
		}
		steps = append(steps, st)
	}
	return Target{
		Path:  path,
		Edits: len(steps),
		Patch: func(cls *smali.Class) error {
			for _, st := range steps {
				if err := st(cls); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func compileEdit(e patchset.Edit, src fs.FS) (step, error) {
	fail := func(kind, err error) error {
		return &Error{Kind: kind, Method: e.Method, Op: e.Kind, Err: err}
	}

	text, err := e.FragmentText(src)
	if err != nil {
		return nil, fail(ErrIO, err)
	}
	fragment, err := smali.ParseFragment(text)
	if err != nil {
		return nil, fail(ErrFragmentParse, err)
	}

	var anchor, until smali.Predicate
	if e.Anchor != nil {
		if anchor, err = e.Anchor.Predicate(); err != nil {
			return nil, fail(nil, fmt.Errorf("anchor: %w", err))
		}
	}
	if e.Until != nil {
		if until, err = e.Until.Predicate(); err != nil {
			return nil, fail(nil, fmt.Errorf("until: %w", err))
		}
	}

	if e.Kind == patchset.EditSynthesize {
		sig, err := smali.ParseSignature(e.Signature)
		if err != nil {
			return nil, fail(nil, err)
		}
		mods := make([]smali.Modifier, len(e.Modifiers))
		for i, m := range e.Modifiers {
			mods[i] = smali.Modifier(m)
		}
		return func(cls *smali.Class) error {
			if _, exists := cls.Method(e.Method); exists {
				log.Warningf("%s: synthesized %s shadows an existing method of that name", cls.Name, e.Method)
			}
			cls.AddMethod(smali.Synthesize(e.Method, mods, sig, e.Locals, fragment))
			log.Debugf("%s: synthesized %s%s", cls.Name, e.Method, sig)
			return nil
		}, nil
	}

	// locate finds the anchor in the body as it is when the edit runs.
	locate := func(m *smali.Method, what *patchset.Anchor, match smali.Predicate, from int) (int, error) {
		pos, ok := smali.Locate(m.Instructions[from:], match)
		if !ok {
			return -1, fail(ErrMissingAnchor, fmt.Errorf("%s not found", what))
		}
		return from + pos, nil
	}

	apply := func(m *smali.Method) error {
		switch e.Kind {
		case patchset.EditAppend:
			m.Append(fragment)
			return nil

		case patchset.EditReplaceBody:
			m.ReplaceBody(fragment)
			return nil

		case patchset.EditReplaceTail:
			if m.Len() == 0 {
				return fail(ErrMissingAnchor, errors.New("empty body"))
			}
			start := m.Len() - 1
			if anchor != nil {
				pos, err := locate(m, e.Anchor, anchor, 0)
				if err != nil {
					return err
				}
				start = pos
			}
			return m.ReplaceRange(start, m.Len(), fragment)

		case patchset.EditInsertAfter:
			pos, err := locate(m, e.Anchor, anchor, 0)
			if err != nil {
				return err
			}
			log.Debugf("%s: insert %d entries after %d", m.Name, len(fragment), pos)
			return m.InsertAfter(pos, fragment)

		case patchset.EditReplaceRange:
			start, err := locate(m, e.Anchor, anchor, 0)
			if err != nil {
				return err
			}
			end, err := locate(m, e.Until, until, start+1)
			if err != nil {
				return err
			}
			if e.Inclusive {
				end++
			}
			log.Debugf("%s: replace [%d, %d) with %d entries", m.Name, start, end, len(fragment))
			return m.ReplaceRange(start, end, fragment)

		case patchset.EditInsertLabelBefore:
			pos, err := locate(m, e.Anchor, anchor, 0)
			if err != nil {
				return err
			}
			log.Debugf("%s: label :%s before %d", m.Name, e.Label, pos)
			return m.InsertLabelBefore(pos, e.Label)
		}
		return fail(nil, fmt.Errorf("unknown edit kind %q", e.Kind))
	}

	return func(cls *smali.Class) error {
		m, ok := cls.Method(e.Method)
		if !ok {
			return fail(ErrMissingMethod, nil)
		}
		if err := apply(m); err != nil {
			var pe *Error
			if errors.As(err, &pe) {
				return err
			}
			return fail(nil, err)
		}
		if e.Locals > 0 {
			m.EnsureLocals(e.Locals)
		}
		return nil
	}, nil
}
