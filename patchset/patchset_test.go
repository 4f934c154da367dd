package patchset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/smalimod/smali"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DescriptorName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadPatchSet(t *testing.T) {
	dir := writeDescriptor(t, `
[patchset]
name = "unlock"
description = "unlock everything"
root = "smali/com/example"

[[class]]
path = "Store.smali"

  [[class.edit]]
  kind = "replace-body"
  method = "isUnlocked"
  fragment-file = "fragments/true.smali"
  locals = 1

  [[class.edit]]
  kind = "insert-after"
  method = "onCreate"
  anchor = { prefix = "invoke-super" }
  fragment = "invoke-direct {p0}, Lcom/example/Store;->hook()V"

[[asset]]
kind = "copy"
source = "hook.js"
target = "assets/hook.js"
`)
	if err := os.MkdirAll(filepath.Join(dir, "fragments"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fragments", "true.smali"), []byte("const/4 v0, 0x1\nreturn v0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "hook.js"), []byte("hook();"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Name() != "unlock" {
		t.Errorf("name = %q, want unlock", s.Name())
	}
	if len(s.Classes) != 1 || len(s.Classes[0].Edits) != 2 {
		t.Fatalf("classes = %+v", s.Classes)
	}
	if got := s.ClassPath(s.Classes[0]); got != filepath.Join("smali", "com", "example", "Store.smali") {
		t.Errorf("class path = %q", got)
	}
	if s.EditCount() != 2 {
		t.Errorf("edit count = %d, want 2", s.EditCount())
	}

	body := s.Classes[0].Edits[0]
	if body.Locals != 1 {
		t.Errorf("locals = %d, want 1", body.Locals)
	}
	text, err := body.FragmentText(s.Source())
	if err != nil {
		t.Fatal(err)
	}
	if text != "const/4 v0, 0x1\nreturn v0\n" {
		t.Errorf("fragment-file text = %q", text)
	}

	insert := s.Classes[0].Edits[1]
	if insert.Anchor == nil || insert.Anchor.Prefix != "invoke-super" {
		t.Errorf("anchor = %v", insert.Anchor)
	}

	payload, err := s.Assets[0].Payload(s.Source())
	if err != nil || string(payload) != "hook();" {
		t.Errorf("payload = (%q, %v)", payload, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("err = %v, want read error", err)
	}
}

func TestParseRejects(t *testing.T) {
	const header = "[patchset]\nname = \"x\"\n"
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown key", header + "colour = \"red\"\n", "unknown keys"},
		{"missing name", "[patchset]\nroot = \"smali\"\n", "name"},
		{"bad kind", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"rewrite\"\nmethod = \"m\"\n", "kind"},
		{"negative locals", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"append\"\nmethod = \"m\"\nlocals = -1\n", "locals"},
		{"insert without anchor", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-after\"\nmethod = \"m\"\n", "needs an anchor"},
		{"two anchor keys", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-after\"\nmethod = \"m\"\nanchor = { prefix = \"a\", label = \"b\" }\n", "exactly one"},
		{"label without name", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-label-before\"\nmethod = \"m\"\nanchor = { kind = \"label\" }\n", "needs a label"},
		{"label with colon", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-label-before\"\nmethod = \"m\"\nanchor = { prefix = \"return\" }\nlabel = \":x\"\n", "leading ':'"},
		{"label with space", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-label-before\"\nmethod = \"m\"\nanchor = { prefix = \"return\" }\nlabel = \"a b\"\n", "whitespace"},
		{"bad anchor kind", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"insert-after\"\nmethod = \"m\"\nanchor = { kind = \"opcode\" }\n", "kind"},
		{"range without until", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"replace-range\"\nmethod = \"m\"\nanchor = { prefix = \"a\" }\n", "until"},
		{"synthesize without signature", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"synthesize\"\nmethod = \"m\"\n", "signature"},
		{"synthesize bad signature", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"synthesize\"\nmethod = \"m\"\nsignature = \"(Q)V\"\n", "unknown type"},
		{"signature on append", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"append\"\nmethod = \"m\"\nsignature = \"()V\"\n", "only apply to synthesize"},
		{"both fragments", header + "[[class]]\npath = \"A.smali\"\n[[class.edit]]\nkind = \"append\"\nmethod = \"m\"\nfragment = \"nop\"\nfragment-file = \"a\"\n", "not both"},
		{"marker missing", header + "[[asset]]\nkind = \"insert-before\"\nsource = \"a\"\ntarget = \"b\"\n", "marker"},
		{"asset escapes", header + "[[asset]]\nkind = \"copy\"\nsource = \"a\"\ntarget = \"../b\"\n", "escapes"},
		{"class escapes", header + "[[class]]\npath = \"../A.smali\"\n", "escapes"},
		{"bad toml", "[patchset\n", "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), "test.toml")
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestAnchorPredicate(t *testing.T) {
	entries := []smali.Entry{
		smali.Directive{Text: ".line 1"},
		smali.Instruction{Text: "return v0"},
		smali.Label{Name: "pswitch_0"},
		smali.Directive{Text: ".end packed-switch"},
	}
	tests := []struct {
		anchor Anchor
		want   int
		desc   string
	}{
		{Anchor{Instruction: "return v0"}, 1, `instruction "return v0"`},
		{Anchor{Prefix: "return"}, 1, `prefix "return"`},
		{Anchor{Directive: ".end packed-switch"}, 3, `directive ".end packed-switch"`},
		{Anchor{DirectivePrefix: ".end"}, 3, `directive-prefix ".end"`},
		{Anchor{Label: "pswitch_0"}, 2, `label "pswitch_0"`},
		{Anchor{Text: ":pswitch_0"}, 2, `text ":pswitch_0"`},
		{Anchor{Kind: "label"}, 2, `kind "label"`},
		{Anchor{Prefix: "goto"}, -1, `prefix "goto"`},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			pred, err := tt.anchor.Predicate()
			if err != nil {
				t.Fatal(err)
			}
			if pos, _ := smali.Locate(entries, pred); pos != tt.want {
				t.Errorf("Locate = %d, want %d", pos, tt.want)
			}
			if got := tt.anchor.String(); got != tt.desc {
				t.Errorf("String() = %s, want %s", got, tt.desc)
			}
		})
	}

	if _, err := (&Anchor{}).Predicate(); err == nil {
		t.Error("empty anchor produced a predicate")
	}
}

func TestBuiltin(t *testing.T) {
	names := Builtins()
	if len(names) == 0 || names[0] != DefaultBuiltin {
		t.Fatalf("Builtins() = %v, want %s first", names, DefaultBuiltin)
	}

	s, err := Builtin(DefaultBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Classes) != 2 || s.EditCount() != 5 || len(s.Assets) != 1 {
		t.Errorf("built-in set shape: %s", s.Summary())
	}
	for _, c := range s.Classes {
		for _, e := range c.Edits {
			text, err := e.FragmentText(s.Source())
			if err != nil {
				t.Fatal(err)
			}
			if _, err := smali.ParseFragment(text); err != nil {
				t.Errorf("%s %s: fragment does not parse: %v", e.Kind, e.Method, err)
			}
		}
	}
	html, err := s.Assets[0].Payload(s.Source())
	if err != nil || !strings.Contains(string(html), "showMod") {
		t.Errorf("mod.html payload = (%d bytes, %v)", len(html), err)
	}

	if _, err := Builtin("nope"); err == nil {
		t.Error("Builtin(nope) succeeded")
	}
}

func TestFragmentFileWithoutSource(t *testing.T) {
	e := Edit{Kind: EditAppend, Method: "m", FragmentFile: "x.smali"}
	if _, err := e.FragmentText(nil); err == nil {
		t.Error("FragmentText without source succeeded")
	}
}
