package patchset

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/chazu/smalimod/smali"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#PatchSet"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #PatchSet: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks the set against the descriptor schema and then the
// rules that tie fields of an edit together.
func (s *Set) Validate() error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	v := ctx.Encode(s)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return errors.New(cueerrors.Details(err, nil))
	}

	for i, c := range s.Classes {
		if !filepath.IsLocal(s.ClassPath(c)) {
			return fmt.Errorf("class[%d]: path %q escapes the project", i, c.Path)
		}
		for j, e := range c.Edits {
			if err := e.validate(); err != nil {
				return fmt.Errorf("class[%d] %s: edit[%d] %s %s: %w", i, c.Path, j, e.Kind, e.Method, err)
			}
		}
	}
	for i, a := range s.Assets {
		if a.Kind == AssetInsertBefore && a.Marker == "" {
			return fmt.Errorf("asset[%d] %s: insert-before needs a marker", i, a.Target)
		}
		if !filepath.IsLocal(filepath.FromSlash(a.Target)) {
			return fmt.Errorf("asset[%d]: target %q escapes the project", i, a.Target)
		}
	}
	return nil
}

func (e Edit) validate() error {
	needsAnchor := e.Kind == EditInsertAfter || e.Kind == EditInsertLabelBefore || e.Kind == EditReplaceRange
	if needsAnchor && e.Anchor == nil {
		return errors.New("needs an anchor")
	}
	if e.Anchor != nil {
		if err := e.Anchor.validate(); err != nil {
			return fmt.Errorf("anchor: %w", err)
		}
	}

	if e.Kind == EditReplaceRange {
		if e.Until == nil {
			return errors.New("needs an until anchor")
		}
		if err := e.Until.validate(); err != nil {
			return fmt.Errorf("until: %w", err)
		}
	} else if e.Until != nil || e.Inclusive {
		return errors.New("until and inclusive only apply to replace-range")
	}

	if e.Kind == EditInsertLabelBefore {
		if e.Label == "" {
			return errors.New("needs a label")
		}
		if strings.HasPrefix(e.Label, ":") {
			return fmt.Errorf("label %q: give the name without the leading ':'", e.Label)
		}
		if strings.ContainsAny(e.Label, " \t\r\n") {
			return fmt.Errorf("label %q contains whitespace", e.Label)
		}
		if e.Fragment != "" || e.FragmentFile != "" {
			return errors.New("insert-label-before takes no fragment")
		}
	} else if e.Label != "" {
		return errors.New("label only applies to insert-label-before")
	}

	if e.Fragment != "" && e.FragmentFile != "" {
		return errors.New("set fragment or fragment-file, not both")
	}

	if e.Kind == EditSynthesize {
		if e.Signature == "" {
			return errors.New("needs a signature")
		}
		if _, err := smali.ParseSignature(e.Signature); err != nil {
			return err
		}
	} else if e.Signature != "" || len(e.Modifiers) > 0 {
		return errors.New("signature and modifiers only apply to synthesize")
	}
	return nil
}
