// smalimod applies a patch set to a decompiled Android project.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"

	"github.com/chazu/smalimod/journal"
	"github.com/chazu/smalimod/ledger"
	"github.com/chazu/smalimod/patch"
	"github.com/chazu/smalimod/patchset"
)

var log = commonlog.GetLogger("smalimod")

type options struct {
	patches  string
	builtin  string
	dryRun   bool
	rollback bool
	ledger   string
	history  bool
	list     bool
	root     string
}

func main() {
	var opts options
	flag.StringVar(&opts.patches, "patches", "", "Patch set descriptor (TOML file or directory); default is the built-in set")
	flag.StringVar(&opts.builtin, "builtin", patchset.DefaultBuiltin, "Built-in patch set to use when -patches is not given")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Patch and serialize everything but write nothing")
	flag.BoolVar(&opts.rollback, "rollback", false, "Restore files from an interrupted run's journal, then exit")
	flag.StringVar(&opts.ledger, "ledger", "", "Record the run in this SQLite ledger")
	flag.BoolVar(&opts.history, "history", false, "Print the runs recorded in -ledger, then exit")
	flag.BoolVar(&opts.list, "list", false, "List the built-in patch sets, then exit")
	verbosity := flag.Int("v", 0, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: smalimod [options] <project-dir>\n\n")
		fmt.Fprintf(os.Stderr, "Applies structural edits to the .smali classes of a decompiled project.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  smalimod ./game                        # Apply the built-in ChoiceScript set\n")
		fmt.Fprintf(os.Stderr, "  smalimod -patches ./unlock ./game      # Apply ./unlock/patchset.toml\n")
		fmt.Fprintf(os.Stderr, "  smalimod -dry-run -v 2 ./game          # Show what would change\n")
		fmt.Fprintf(os.Stderr, "  smalimod -rollback ./game              # Undo an interrupted run\n")
		fmt.Fprintf(os.Stderr, "  smalimod -ledger runs.db -history      # List recorded runs\n")
	}
	flag.Parse()

	configureLogging(*verbosity)

	if flag.NArg() > 1 {
		flag.Usage()
		atexit.Exit(2)
	}
	opts.root = flag.Arg(0)

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// configureLogging installs an unbuffered simple backend. The buffered
// default is only flushed by kutil's exit hooks, which atexit.Exit skips.
func configureLogging(verbosity int) {
	backend := simple.NewBackend()
	backend.Buffered = false
	commonlog.SetBackend(backend)
	commonlog.Configure(verbosity, nil)
}

func run(opts options, out io.Writer) error {
	if opts.list {
		return listBuiltins(out)
	}

	var lg *ledger.Ledger
	if opts.ledger != "" {
		var err error
		if lg, err = ledger.Open(opts.ledger); err != nil {
			return err
		}
		atexit.Register(func() { _ = lg.Close() })
	}

	if opts.history {
		if lg == nil {
			return errors.New("-history needs -ledger")
		}
		return printHistory(lg, out)
	}

	if opts.root == "" {
		return errors.New("no project directory given")
	}
	root, err := filepath.Abs(opts.root)
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", opts.root)
	}

	if opts.rollback {
		n, err := journal.Recover(root)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintf(out, "nothing to roll back in %s\n", root)
		} else {
			fmt.Fprintf(out, "restored %d files\n", n)
		}
		return nil
	}

	if journal.Pending(root) {
		return fmt.Errorf("%s holds the journal of an interrupted run; run with -rollback first", journal.Path(root))
	}

	set, err := loadSet(opts)
	if err != nil {
		return err
	}
	log.Noticef("patch set %s", set.Summary())

	targets, assets, err := patch.CompileSet(set)
	if err != nil {
		return err
	}

	runID := "unrecorded"
	var rec *ledger.Run
	if lg != nil {
		if prev, ok, err := lg.LastCommitted(set.Name(), root); err != nil {
			return err
		} else if ok && !opts.dryRun {
			log.Warningf("%s was already applied to %s at %s; edits whose anchors still match will be applied again",
				set.Name(), root, prev.Finished.Format("2006-01-02 15:04:05"))
		}
		if rec, err = lg.Begin(set.Name(), root, opts.dryRun); err != nil {
			return err
		}
		runID = rec.ID
	}

	runner := &patch.Runner{Root: root, DryRun: opts.dryRun, RunID: runID}
	report, runErr := runner.Run(targets, assets)

	if lg != nil {
		for _, c := range report.Classes {
			if err := lg.RecordClass(rec.ID, ledger.ClassRecord{Path: filepath.ToSlash(c.Path), Edits: c.Edits, Before: c.Before, After: c.After}); err != nil {
				log.Errorf("%s", err)
			}
		}
		if err := lg.Finish(rec, runErr); err != nil {
			log.Errorf("%s", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprint(out, report)
	return nil
}

func loadSet(opts options) (*patchset.Set, error) {
	if opts.patches != "" {
		return patchset.Load(opts.patches)
	}
	return patchset.Builtin(opts.builtin)
}

func listBuiltins(out io.Writer) error {
	for _, name := range patchset.Builtins() {
		set, err := patchset.Builtin(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, set.Summary())
	}
	return nil
}

func printHistory(lg *ledger.Ledger, out io.Writer) error {
	runs, err := lg.Runs(0)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPATCH SET\tSTATUS\tROOT\tID")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Started.Local().Format("2006-01-02 15:04:05"), r.PatchSet, r.Status, r.Root, r.ID)
	}
	return w.Flush()
}
