// Package patchset handles patch set descriptors: TOML files naming the
// classes to patch, the edits to run against each of them, and the assets
// to write once every class has been patched.
package patchset

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Edit kinds.
const (
	EditAppend            = "append"
	EditReplaceTail       = "replace-tail"
	EditInsertAfter       = "insert-after"
	EditReplaceRange      = "replace-range"
	EditReplaceBody       = "replace-body"
	EditInsertLabelBefore = "insert-label-before"
	EditSynthesize        = "synthesize"
)

// Asset kinds.
const (
	AssetCopy         = "copy"
	AssetInsertBefore = "insert-before"
)

// DescriptorName is the file name looked up when Load is given a directory.
const DescriptorName = "patchset.toml"

// Set is a parsed patch set descriptor.
type Set struct {
	PatchSet Meta    `toml:"patchset" json:"patchset"`
	Classes  []Class `toml:"class" json:"class,omitempty"`
	Assets   []Asset `toml:"asset" json:"asset,omitempty"`

	// Dir is the directory containing the descriptor (set at load time).
	// Empty for built-in sets.
	Dir string `toml:"-" json:"-"`

	src fs.FS
}

// Meta names the set and the directory its class paths are relative to.
type Meta struct {
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description,omitempty"`
	Root        string `toml:"root" json:"root,omitempty"`
}

// Class lists the edits for one class file, applied in order.
type Class struct {
	Path  string `toml:"path" json:"path"`
	Edits []Edit `toml:"edit" json:"edit,omitempty"`
}

// Edit is one structural edit against a method.
type Edit struct {
	Kind   string  `toml:"kind" json:"kind"`
	Method string  `toml:"method" json:"method"`
	Anchor *Anchor `toml:"anchor" json:"anchor,omitempty"`
	// Until ends a replace-range; it is searched for after Anchor.
	Until     *Anchor `toml:"until" json:"until,omitempty"`
	Inclusive bool    `toml:"inclusive" json:"inclusive,omitempty"`
	Label     string  `toml:"label" json:"label,omitempty"`

	Fragment     string `toml:"fragment" json:"fragment,omitempty"`
	FragmentFile string `toml:"fragment-file" json:"fragment-file,omitempty"`

	// Synthesize only.
	Modifiers []string `toml:"modifiers" json:"modifiers,omitempty"`
	Signature string   `toml:"signature" json:"signature,omitempty"`

	// Locals raises the method's register count to at least this value.
	Locals int `toml:"locals" json:"locals,omitempty"`
}

// Asset is a non-code file written after all class patches succeed.
type Asset struct {
	Kind   string `toml:"kind" json:"kind"`
	Source string `toml:"source" json:"source"`
	Target string `toml:"target" json:"target"`
	Marker string `toml:"marker" json:"marker,omitempty"`
}

// Load parses and validates a descriptor file. If path is a directory,
// the patchset.toml inside it is loaded.
func Load(p string) (*Set, error) {
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, DescriptorName)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", p, err)
	}

	s, err := Parse(data, p)
	if err != nil {
		return nil, err
	}

	s.Dir, err = filepath.Abs(filepath.Dir(p))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", p, err)
	}
	s.src = os.DirFS(s.Dir)
	return s, nil
}

// Parse decodes and validates descriptor text. name is used in error
// messages only. The returned set has no source directory; fragment-file
// and asset sources cannot be resolved until one is attached.
func Parse(data []byte, name string) (*Set, error) {
	var s Set
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse error in %s: unknown keys %s", name, strings.Join(keys, ", "))
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid patch set %s: %w", name, err)
	}
	return &s, nil
}

// Name returns the set's declared name.
func (s *Set) Name() string {
	return s.PatchSet.Name
}

// Source returns the file system fragment-file and asset source paths are
// resolved against.
func (s *Set) Source() fs.FS {
	return s.src
}

// ClassPath returns the project-relative path of a class file.
func (s *Set) ClassPath(c Class) string {
	return filepath.Join(filepath.FromSlash(s.PatchSet.Root), filepath.FromSlash(c.Path))
}

// FragmentText returns the edit's fragment, reading fragment-file from src
// when set.
func (e Edit) FragmentText(src fs.FS) (string, error) {
	if e.FragmentFile == "" {
		return e.Fragment, nil
	}
	if src == nil {
		return "", fmt.Errorf("fragment-file %s: patch set has no source directory", e.FragmentFile)
	}
	data, err := fs.ReadFile(src, path.Clean(e.FragmentFile))
	if err != nil {
		return "", fmt.Errorf("fragment-file %s: %w", e.FragmentFile, err)
	}
	return string(data), nil
}

// Payload reads the asset's source bytes from src.
func (a Asset) Payload(src fs.FS) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("asset %s: patch set has no source directory", a.Source)
	}
	data, err := fs.ReadFile(src, path.Clean(a.Source))
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", a.Source, err)
	}
	return data, nil
}

// EditCount returns the number of edits across all classes.
func (s *Set) EditCount() int {
	n := 0
	for _, c := range s.Classes {
		n += len(c.Edits)
	}
	return n
}

// classPaths returns the sorted, de-duplicated class paths; used in
// summaries.
func (s *Set) classPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.Classes {
		p := s.ClassPath(c)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Summary returns a short human-readable description of the set.
func (s *Set) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d classes, %d edits, %d assets", s.Name(), len(s.Classes), s.EditCount(), len(s.Assets))
	if s.PatchSet.Description != "" {
		fmt.Fprintf(&sb, "\n  %s", s.PatchSet.Description)
	}
	for _, p := range s.classPaths() {
		fmt.Fprintf(&sb, "\n  - %s", filepath.ToSlash(p))
	}
	return sb.String()
}
