package patch

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/chazu/smalimod/journal"
	"github.com/chazu/smalimod/patchset"
)

// Asset is a compiled asset operation with its payload loaded.
type Asset struct {
	Kind    string
	Target  string // relative to the project root
	Marker  string
	Payload []byte
}

// CompileAssets loads the payload of every asset in the set.
func CompileAssets(set *patchset.Set) ([]Asset, error) {
	assets := make([]Asset, 0, len(set.Assets))
	for _, a := range set.Assets {
		payload, err := a.Payload(set.Source())
		if err != nil {
			return nil, &Error{Kind: ErrIO, Path: a.Target, Op: a.Kind, Err: err}
		}
		assets = append(assets, Asset{
			Kind:    a.Kind,
			Target:  filepath.FromSlash(a.Target),
			Marker:  a.Marker,
			Payload: payload,
		})
	}
	return assets, nil
}

// apply stages the asset's result.
func (a Asset) apply(stage *journal.Stage) error {
	fail := func(kind, err error) error {
		return &Error{Kind: kind, Path: a.Target, Op: a.Kind, Err: err}
	}

	switch a.Kind {
	case patchset.AssetCopy:
		stage.Put(a.Target, a.Payload)
		return nil

	case patchset.AssetInsertBefore:
		data, err := stage.Read(a.Target)
		if err != nil {
			return fail(ErrIO, err)
		}
		marker := []byte(a.Marker)
		n := bytes.Count(data, marker)
		if n == 0 {
			return fail(ErrMissingAnchor, fmt.Errorf("marker %q not found", a.Marker))
		}
		replacement := append(append([]byte(nil), a.Payload...), marker...)
		stage.Put(a.Target, bytes.ReplaceAll(data, marker, replacement))
		log.Debugf("%s: inserted %d bytes before %d occurrence(s) of %q", a.Target, len(a.Payload), n, a.Marker)
		return nil
	}
	return fail(nil, fmt.Errorf("unknown asset kind %q", a.Kind))
}
