package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/smalimod/journal"
	"github.com/chazu/smalimod/ledger"
	"github.com/chazu/smalimod/patchset"
)

// TestMain lets the test binary stand in for smalimod itself, so the CLI
// can be run end to end including its exit path.
func TestMain(m *testing.M) {
	if os.Getenv("SMALIMOD_RUN_MAIN") == "1" {
		os.Args = append([]string{"smalimod"}, os.Args[1:]...)
		main()
		return
	}
	os.Exit(m.Run())
}

// runCLI runs smalimod in a child process and returns its stderr.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = append(os.Environ(), "SMALIMOD_RUN_MAIN=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("smalimod %v: %v\n%s", args, err, stderr.String())
	}
	return stderr.String()
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.CopyFS(root, os.DirFS(filepath.Join("..", "..", "patch", "testdata", "project"))); err != nil {
		t.Fatal(err)
	}
	return root
}

const billing = "smali/com/choiceofgames/choicescript/Billing.smali"

func TestRunBuiltinWithLedger(t *testing.T) {
	root := newProject(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	var out bytes.Buffer
	opts := options{builtin: patchset.DefaultBuiltin, root: root, ledger: db}
	if err := run(opts, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "committed") {
		t.Errorf("output = %q", out.String())
	}
	data, err := os.ReadFile(filepath.Join(root, billing))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "const/4 v0, 0x1") {
		t.Error("Billing.smali not patched")
	}

	out.Reset()
	if err := run(options{ledger: db, history: true}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "choicescript") || !strings.Contains(out.String(), ledger.StatusCommitted) {
		t.Errorf("history = %q", out.String())
	}

	lg, err := ledger.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer lg.Close()
	runs, err := lg.Runs(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs = (%v, %v)", runs, err)
	}
	classes, err := lg.Classes(runs[0].ID)
	if err != nil || len(classes) != 2 || classes[1].Path != billing {
		t.Errorf("Classes = (%+v, %v)", classes, err)
	}
}

func TestRunDryRun(t *testing.T) {
	root := newProject(t)
	before, _ := os.ReadFile(filepath.Join(root, billing))

	var out bytes.Buffer
	if err := run(options{builtin: patchset.DefaultBuiltin, root: root, dryRun: true}, &out); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(filepath.Join(root, billing))
	if !bytes.Equal(before, after) {
		t.Error("dry run changed Billing.smali")
	}
	if !strings.Contains(out.String(), "not committed") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunRefusesPendingJournal(t *testing.T) {
	root := newProject(t)
	if err := os.MkdirAll(filepath.Join(root, journal.Dir), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := journal.Marshal(&journal.Journal{RunID: "crashed"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(journal.Path(root), data, 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err = run(options{builtin: patchset.DefaultBuiltin, root: root}, &out)
	if err == nil || !strings.Contains(err.Error(), "-rollback") {
		t.Fatalf("err = %v, want a pointer to -rollback", err)
	}

	if err := run(options{root: root, rollback: true}, &out); err != nil {
		t.Fatal(err)
	}
	if journal.Pending(root) {
		t.Error("rollback left the journal")
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		wantErr string
	}{
		{"no root", options{builtin: patchset.DefaultBuiltin}, "no project directory"},
		{"root not a dir", options{builtin: patchset.DefaultBuiltin, root: "main.go"}, "not a directory"},
		{"history without ledger", options{history: true}, "-history needs -ledger"},
		{"unknown builtin", options{builtin: "nope", root: "."}, "unknown built-in"},
		{"missing descriptor", options{patches: "does-not-exist.toml", root: "."}, "cannot read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.opts, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestListBuiltins(t *testing.T) {
	var out bytes.Buffer
	if err := run(options{list: true}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "choicescript:") {
		t.Errorf("list = %q", out.String())
	}
}

func TestRepeatRunWarningsReachStderr(t *testing.T) {
	root := newProject(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	first := runCLI(t, "-v", "0", "-ledger", db, root)
	if strings.Contains(first, "already applied") {
		t.Errorf("first run warned about a repeat:\n%s", first)
	}

	second := runCLI(t, "-v", "0", "-ledger", db, root)
	for _, want := range []string{"already applied", "shadows an existing method"} {
		if !strings.Contains(second, want) {
			t.Errorf("second run stderr lacks %q:\n%s", want, second)
		}
	}
}
