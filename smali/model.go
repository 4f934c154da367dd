// Package smali holds the structured form of smali disassembly: classes,
// methods and their ordered instruction entries, together with the
// primitives used to locate anchors in a method body and edit it.
//
// The text reader (Parse, ParseFragment) and writer (Class.String) live in
// this package as well, but the editing primitives never look at the
// meaning of instruction text, only at entry positions and kinds.
package smali

import "strings"

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// EntryKind identifies the variant of an Entry.
type EntryKind int

const (
	KindInstruction EntryKind = iota
	KindLabel
	KindDirective
)

func (k EntryKind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindLabel:
		return "label"
	case KindDirective:
		return "directive"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name ("instruction", "label", "directive") back to
// its EntryKind.
func ParseKind(name string) (EntryKind, bool) {
	switch name {
	case "instruction":
		return KindInstruction, true
	case "label":
		return KindLabel, true
	case "directive":
		return KindDirective, true
	}
	return 0, false
}

// Entry is one line of a method body. The set of variants is closed:
// Instruction, Label and Directive.
type Entry interface {
	Kind() EntryKind
	// String renders the entry as a source line, without indentation.
	String() string
	entry() // marker method
}

// Instruction is a plain instruction line, e.g. "const/4 v0, 0x1".
type Instruction struct {
	Text string
}

func (Instruction) Kind() EntryKind  { return KindInstruction }
func (i Instruction) String() string { return i.Text }
func (Instruction) entry()           {}

// Label is a branch target (":cond_0") or a switch table entry.
type Label struct {
	Name string
}

func (Label) Kind() EntryKind  { return KindLabel }
func (l Label) String() string { return ":" + l.Name }
func (Label) entry()           {}

// Directive is a non-executable marker inside a method body, such as
// ".line 12" or ".end packed-switch". Annotation blocks are kept as a
// single Directive whose Text spans several lines.
type Directive struct {
	Text string
}

func (Directive) Kind() EntryKind  { return KindDirective }
func (d Directive) String() string { return d.Text }
func (Directive) entry()           {}

// ---------------------------------------------------------------------------
// Types and signatures
// ---------------------------------------------------------------------------

// Type is a type descriptor: "I", "V", "Ljava/lang/String;", "[B", ...
type Type string

const Void Type = "V"

// Signature is a method prototype.
type Signature struct {
	Args   []Type
	Return Type
}

// String renders the signature in descriptor form, e.g. "(Landroid/view/Menu;)Z".
func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range s.Args {
		sb.WriteString(string(a))
	}
	sb.WriteByte(')')
	sb.WriteString(string(s.Return))
	return sb.String()
}

// Modifier is an access flag as written in smali ("public", "static", ...).
type Modifier string

const (
	Public       Modifier = "public"
	Private      Modifier = "private"
	Protected    Modifier = "protected"
	Static       Modifier = "static"
	Final        Modifier = "final"
	Synchronized Modifier = "synchronized"
	Bridge       Modifier = "bridge"
	Varargs      Modifier = "varargs"
	Native       Modifier = "native"
	Abstract     Modifier = "abstract"
	Synthetic    Modifier = "synthetic"
	Constructor  Modifier = "constructor"
)

func hasModifier(mods []Modifier, m Modifier) bool {
	for _, x := range mods {
		if x == m {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Methods and classes
// ---------------------------------------------------------------------------

// Method is a single method definition.
type Method struct {
	Name      string
	Modifiers []Modifier
	Signature Signature
	// Locals is the declared register count. When Registers is set the
	// count was declared with ".registers" (locals plus parameters).
	Locals    int
	Registers bool

	Instructions []Entry
}

// HasModifier reports whether the method carries the given modifier.
func (m *Method) HasModifier(mod Modifier) bool {
	return hasModifier(m.Modifiers, mod)
}

// Len returns the number of entries in the method body.
func (m *Method) Len() int {
	return len(m.Instructions)
}

// Block is a multi-line directive block kept verbatim, such as a class
// level annotation. Lines are stored trimmed.
type Block []string

// Field is a field declaration and any annotation lines attached to it.
type Field struct {
	Decl        string
	Annotations []Block
}

// Class is a parsed .smali file.
type Class struct {
	Name        string
	Modifiers   []Modifier
	Super       string
	Source      string
	Interfaces  []string
	Annotations []Block
	Fields      []Field
	Methods     []*Method
}

// HasModifier reports whether the class carries the given modifier.
func (c *Class) HasModifier(mod Modifier) bool {
	return hasModifier(c.Modifiers, mod)
}
