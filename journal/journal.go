// Package journal stages file writes in memory and commits them together.
//
// Before a commit touches the project, the original bytes of every target
// are recorded in a rollback journal under the project root. A commit that
// fails part way restores the originals itself; a process that dies part
// way leaves the journal behind for Recover.
package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

// Dir and FileName locate the journal relative to the project root.
const (
	Dir      = ".smalimod"
	FileName = "journal.cbor"
)

var log = commonlog.GetLogger("smalimod.journal")

// Canonical mode keeps the journal bytes identical for identical commits,
// so two journals can be compared byte for byte.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Journal is the on-disk record of a commit in progress.
type Journal struct {
	RunID   string  `cbor:"1,keyasint"`
	Created int64   `cbor:"2,keyasint"` // unix seconds
	Entries []Entry `cbor:"3,keyasint"`
}

// Entry holds the state of one target before the commit.
type Entry struct {
	Path    string `cbor:"1,keyasint"` // relative to the project root
	Existed bool   `cbor:"2,keyasint"`
	Mode    uint32 `cbor:"3,keyasint,omitempty"`
	Data    []byte `cbor:"4,keyasint,omitempty"`
	// Dirs lists the parent directories the commit has to create for a
	// new file, deepest first.
	Dirs []string `cbor:"5,keyasint,omitempty"`
}

// Path returns the journal location for a project root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Marshal serializes a Journal to canonical CBOR.
func Marshal(j *Journal) ([]byte, error) {
	return cborEncMode.Marshal(j)
}

// Unmarshal deserializes a Journal from CBOR bytes.
func Unmarshal(data []byte) (*Journal, error) {
	var j Journal
	if err := cbor.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("journal: unmarshal: %w", err)
	}
	return &j, nil
}

// Pending reports whether root holds a journal from an unfinished commit.
func Pending(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// Read loads the journal under root.
func Read(root string) (*Journal, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Recover restores every file recorded in root's journal and removes the
// journal. It returns the number of files restored; zero with a nil error
// when there is no journal.
func Recover(root string) (int, error) {
	j, err := Read(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	log.Noticef("recovering run %s (%d files)", j.RunID, len(j.Entries))
	if err := restore(root, j.Entries); err != nil {
		return 0, err
	}
	if err := removeJournal(root); err != nil {
		return len(j.Entries), err
	}
	return len(j.Entries), nil
}

func snapshot(root string, paths []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		abs := filepath.Join(root, p)
		info, err := os.Stat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			dirs, err := missingDirs(root, filepath.Dir(p))
			if err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", p, err)
			}
			entries = append(entries, Entry{Path: p, Dirs: dirs})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", p, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", p, err)
		}
		entries = append(entries, Entry{Path: p, Existed: true, Mode: uint32(info.Mode().Perm()), Data: data})
	}
	return entries, nil
}

// missingDirs returns dir and each of its ancestors under root that does
// not exist yet, deepest first.
func missingDirs(root, dir string) ([]string, error) {
	var dirs []string
	for dir != "." && dir != string(filepath.Separator) {
		_, err := os.Stat(filepath.Join(root, dir))
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		dirs = append(dirs, dir)
		dir = filepath.Dir(dir)
	}
	return dirs, nil
}

// restore puts every entry back. It keeps going after a failure so that as
// many files as possible are restored, and reports all failures.
func restore(root string, entries []Entry) error {
	var errs []error
	for _, e := range entries {
		abs := filepath.Join(root, e.Path)
		if !e.Existed {
			if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("restore %s: %w", e.Path, err))
				continue
			}
			// A directory still shared with another new file stays until
			// that file's entry removes it.
			for _, d := range e.Dirs {
				if err := os.Remove(filepath.Join(root, d)); err != nil {
					break
				}
			}
			continue
		}
		if err := writeFile(abs, e.Data, fs.FileMode(e.Mode)); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", e.Path, err))
			continue
		}
		log.Debugf("restored %s", e.Path)
	}
	return errors.Join(errs...)
}

func writeJournal(root string, j *Journal) error {
	data, err := Marshal(j)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, Dir), 0o755); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return writeFile(Path(root), data, 0o644)
}

func removeJournal(root string) error {
	if err := os.Remove(Path(root)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("journal: %w", err)
	}
	// Only succeeds when nothing else lives there.
	_ = os.Remove(filepath.Join(root, Dir))
	return nil
}

// writeFile replaces path through a temp file and rename so readers never
// see a partial file.
func writeFile(path string, data []byte, mode fs.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func now() int64 {
	return time.Now().Unix()
}
