package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// writeTarget writes one committed file; tests replace it to inject
// failures.
var writeTarget = writeFile

// Stage buffers file contents for a project root until Commit.
type Stage struct {
	root  string
	files map[string][]byte
	order []string
}

// NewStage creates an empty stage over root.
func NewStage(root string) *Stage {
	return &Stage{root: root, files: make(map[string][]byte)}
}

// Root returns the project root the stage writes under.
func (s *Stage) Root() string {
	return s.root
}

// Put stages data for the root-relative path rel, replacing anything
// already staged there.
func (s *Stage) Put(rel string, data []byte) {
	rel = filepath.Clean(rel)
	if _, ok := s.files[rel]; !ok {
		s.order = append(s.order, rel)
	}
	s.files[rel] = append([]byte(nil), data...)
}

// Read returns the staged content of rel, or the file on disk when nothing
// is staged for it.
func (s *Stage) Read(rel string) ([]byte, error) {
	rel = filepath.Clean(rel)
	if data, ok := s.files[rel]; ok {
		return append([]byte(nil), data...), nil
	}
	return os.ReadFile(filepath.Join(s.root, rel))
}

// Staged reports whether rel has staged content.
func (s *Stage) Staged(rel string) bool {
	_, ok := s.files[filepath.Clean(rel)]
	return ok
}

// Paths returns the staged paths in the order they were first put.
func (s *Stage) Paths() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of staged files.
func (s *Stage) Len() int {
	return len(s.order)
}

// Commit writes every staged file under the root. The originals are
// journaled first. If any write fails, all targets are restored and the
// error is returned; the journal is kept only if that restore also fails.
// On success the stage is emptied.
func (s *Stage) Commit(runID string) error {
	if len(s.order) == 0 {
		return nil
	}
	if Pending(s.root) {
		return fmt.Errorf("journal: %s exists from an unfinished run; recover it first", Path(s.root))
	}

	entries, err := snapshot(s.root, s.order)
	if err != nil {
		return err
	}
	if err := writeJournal(s.root, &Journal{RunID: runID, Created: now(), Entries: entries}); err != nil {
		return err
	}
	log.Debugf("journaled %d files for run %s", len(entries), runID)

	for i, rel := range s.order {
		mode := entries[i].Mode
		if err := writeTarget(filepath.Join(s.root, rel), s.files[rel], os.FileMode(mode)); err != nil {
			werr := fmt.Errorf("write %s: %w", rel, err)
			log.Errorf("%s; restoring %d files", werr, len(entries))
			if rerr := restore(s.root, entries); rerr != nil {
				return errors.Join(werr, rerr)
			}
			return errors.Join(werr, removeJournal(s.root))
		}
		log.Infof("wrote %s", rel)
	}

	if err := removeJournal(s.root); err != nil {
		return err
	}
	s.files = make(map[string][]byte)
	s.order = nil
	return nil
}
