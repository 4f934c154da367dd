// Package patch compiles patch set descriptors into per-class patch
// functions and runs them against a project.
//
// A run is all or nothing on disk: classes and assets are patched into a
// journal.Stage, and only a run in which every class and asset succeeded is
// committed.
package patch

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/smalimod/journal"
	"github.com/chazu/smalimod/smali"
)

var log = commonlog.GetLogger("smalimod.patch")

// Runner applies targets to the project under Root.
type Runner struct {
	Root string
	// Stage buffers writes; a fresh one over Root is used when nil.
	Stage *journal.Stage
	// Log defaults to the package logger.
	Log commonlog.Logger
	// DryRun patches and stages everything but commits nothing.
	DryRun bool
	// RunID is recorded in the rollback journal.
	RunID string
}

// ClassReport describes one patched class. Before and After count entries
// across all methods.
type ClassReport struct {
	Path    string
	Edits   int
	Methods int
	Before  int
	After   int
}

// Report describes a run. On failure it holds what completed before the
// error.
type Report struct {
	Classes   []ClassReport
	Assets    []string
	Committed bool
}

func (r *Report) String() string {
	var sb strings.Builder
	for _, c := range r.Classes {
		fmt.Fprintf(&sb, "%s: %d edits, %d methods, %d -> %d entries\n", c.Path, c.Edits, c.Methods, c.Before, c.After)
	}
	for _, a := range r.Assets {
		fmt.Fprintf(&sb, "%s: asset updated\n", a)
	}
	if r.Committed {
		sb.WriteString("committed\n")
	} else {
		sb.WriteString("not committed\n")
	}
	return sb.String()
}

func (r *Runner) logger() commonlog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return log
}

// Run patches each target in order, then applies the assets, then commits.
// The first error stops the run; nothing is written to disk unless every
// step succeeded.
func (r *Runner) Run(targets []Target, assets []Asset) (*Report, error) {
	lg := r.logger()
	stage := r.Stage
	if stage == nil {
		stage = journal.NewStage(r.Root)
	}

	report := &Report{}
	for i, t := range targets {
		lg.Noticef("[%d/%d] patching %s", i+1, len(targets), t.Path)
		cr, err := r.patchClass(stage, t)
		if err != nil {
			lg.Errorf("%s", err)
			return report, err
		}
		lg.Infof("%s: %d -> %d entries", t.Path, cr.Before, cr.After)
		report.Classes = append(report.Classes, cr)
	}

	for _, a := range assets {
		lg.Noticef("asset %s %s", a.Kind, a.Target)
		if err := a.apply(stage); err != nil {
			lg.Errorf("%s", err)
			return report, err
		}
		report.Assets = append(report.Assets, a.Target)
	}

	if r.DryRun {
		lg.Noticef("dry run: %d files staged, nothing written", stage.Len())
		return report, nil
	}
	if err := stage.Commit(r.RunID); err != nil {
		return report, &Error{Kind: ErrIO, Path: r.Root, Op: "commit", Err: err}
	}
	report.Committed = true
	return report, nil
}

func (r *Runner) patchClass(stage *journal.Stage, t Target) (ClassReport, error) {
	cr := ClassReport{Path: t.Path, Edits: t.Edits}

	data, err := stage.Read(t.Path)
	if err != nil {
		return cr, &Error{Kind: ErrIO, Path: t.Path, Op: "read", Err: err}
	}
	cls, err := smali.Parse(string(data))
	if err != nil {
		return cr, &Error{Kind: ErrClassParse, Path: t.Path, Op: "parse", Err: err}
	}
	cr.Before = countEntries(cls)

	if err := t.Patch(cls); err != nil {
		return cr, withPath(err, t.Path)
	}

	cr.Methods = len(cls.Methods)
	cr.After = countEntries(cls)
	stage.Put(t.Path, []byte(cls.String()))
	return cr, nil
}

func countEntries(cls *smali.Class) int {
	n := 0
	for _, m := range cls.Methods {
		n += m.Len()
	}
	return n
}
