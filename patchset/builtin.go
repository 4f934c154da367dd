package patchset

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

// DefaultBuiltin is the set used when no descriptor is given.
const DefaultBuiltin = "choicescript"

//go:embed builtin
var builtinFS embed.FS

// Builtins lists the names of the embedded patch sets.
func Builtins() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Builtin loads an embedded patch set by name.
func Builtin(name string) (*Set, error) {
	dir := path.Join("builtin", name)
	data, err := builtinFS.ReadFile(path.Join(dir, DescriptorName))
	if err != nil {
		return nil, fmt.Errorf("unknown built-in patch set %q (have %v)", name, Builtins())
	}
	s, err := Parse(data, "builtin:"+name)
	if err != nil {
		return nil, err
	}
	s.src, err = fs.Sub(builtinFS, dir)
	if err != nil {
		return nil, fmt.Errorf("built-in patch set %q: %w", name, err)
	}
	return s, nil
}
