package smali

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: line-oriented reader for .smali text
// ---------------------------------------------------------------------------

// SyntaxError reports a line the reader could not place.
type SyntaxError struct {
	Line int // 1-based; 0 when the error is not tied to a line
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Directives that only make sense at class level or in a method header.
// They are rejected inside method bodies and fragments.
var structuralDirectives = map[string]bool{
	".class":      true,
	".super":      true,
	".source":     true,
	".implements": true,
	".field":      true,
	".end field":  true,
	".method":     true,
	".end method": true,
	".locals":     true,
	".registers":  true,
}

type parser struct {
	lines []string
	pos   int // index of the next unread line
}

func newParser(src string) *parser {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return &parser{lines: strings.Split(src, "\n")}
}

// next returns the next significant line, trimmed, and its 1-based number.
// Blank lines and whole-line comments are skipped.
func (p *parser) next() (string, int, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, p.pos, true
	}
	return "", 0, false
}

// peek returns the next significant line without consuming it.
func (p *parser) peek() string {
	save := p.pos
	line, _, _ := p.next()
	p.pos = save
	return line
}

func (p *parser) errorf(line int, format string, args ...interface{}) error {
	return &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// keyword splits a directive line into its leading word and the rest.
// ".end method" style two-word closers are returned whole.
func keyword(line string) (string, string) {
	if strings.HasPrefix(line, ".end ") {
		return line, ""
	}
	word, rest, _ := strings.Cut(line, " ")
	return word, strings.TrimSpace(rest)
}

// Parse reads a whole .smali file.
func Parse(src string) (*Class, error) {
	p := newParser(src)
	c := &Class{}
	sawClass := false

	for {
		line, n, ok := p.next()
		if !ok {
			break
		}
		word, rest := keyword(line)
		switch word {
		case ".class":
			mods, name := splitDecl(rest)
			if name == "" {
				return nil, p.errorf(n, "missing class name")
			}
			c.Modifiers, c.Name = mods, name
			sawClass = true
		case ".super":
			c.Super = rest
		case ".source":
			c.Source = rest
		case ".implements":
			c.Interfaces = append(c.Interfaces, rest)
		case ".annotation":
			blk, err := p.block(line, n, ".end annotation")
			if err != nil {
				return nil, err
			}
			c.Annotations = append(c.Annotations, blk)
		case ".field":
			f, err := p.field(line, n)
			if err != nil {
				return nil, err
			}
			c.Fields = append(c.Fields, f)
		case ".method":
			m, err := p.method(rest, n)
			if err != nil {
				return nil, err
			}
			c.Methods = append(c.Methods, m)
		default:
			return nil, p.errorf(n, "unexpected %q at class level", line)
		}
	}

	if !sawClass {
		return nil, &SyntaxError{Msg: "missing .class directive"}
	}
	return c, nil
}

// ParseFragment converts patch source text into method body entries. The
// text may not contain method or class structure.
func ParseFragment(src string) ([]Entry, error) {
	p := newParser(src)
	var entries []Entry
	for {
		line, n, ok := p.next()
		if !ok {
			return entries, nil
		}
		e, err := p.entry(line, n)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

// block collects lines from first up to and including the closing line.
func (p *parser) block(first string, start int, end string) (Block, error) {
	blk := Block{first}
	for {
		line, _, ok := p.next()
		if !ok {
			return nil, p.errorf(start, "unterminated %s block", strings.TrimPrefix(end, ".end "))
		}
		blk = append(blk, line)
		if line == end {
			return blk, nil
		}
	}
}

func (p *parser) field(decl string, start int) (Field, error) {
	f := Field{Decl: decl}
	for {
		next := p.peek()
		switch {
		case strings.HasPrefix(next, ".annotation"):
			line, n, _ := p.next()
			blk, err := p.block(line, n, ".end annotation")
			if err != nil {
				return f, err
			}
			f.Annotations = append(f.Annotations, blk)
		case next == ".end field":
			p.next()
			return f, nil
		default:
			if len(f.Annotations) > 0 {
				return f, p.errorf(start, "field with annotations is missing .end field")
			}
			return f, nil
		}
	}
}

func (p *parser) method(header string, start int) (*Method, error) {
	mods, proto := splitDecl(header)
	open := strings.IndexByte(proto, '(')
	if open <= 0 {
		return nil, p.errorf(start, "malformed method header %q", header)
	}
	sig, err := ParseSignature(proto[open:])
	if err != nil {
		return nil, p.errorf(start, "%v", err)
	}
	m := &Method{Name: proto[:open], Modifiers: mods, Signature: sig}

	for {
		line, n, ok := p.next()
		if !ok {
			return nil, p.errorf(start, "method %s is missing .end method", m.Name)
		}
		word, rest := keyword(line)
		switch word {
		case ".end method":
			return m, nil
		case ".locals", ".registers":
			count, err := strconv.Atoi(rest)
			if err != nil || count < 0 {
				return nil, p.errorf(n, "bad register count %q", rest)
			}
			m.Locals = count
			m.Registers = word == ".registers"
		default:
			e, err := p.entry(line, n)
			if err != nil {
				return nil, err
			}
			m.Instructions = append(m.Instructions, e)
		}
	}
}

// entry classifies one body line.
func (p *parser) entry(line string, n int) (Entry, error) {
	if strings.HasPrefix(line, ":") {
		name := line[1:]
		if name == "" {
			return nil, p.errorf(n, "empty label")
		}
		if strings.ContainsAny(name, " \t") {
			return nil, p.errorf(n, "label %q contains whitespace", name)
		}
		return Label{Name: name}, nil
	}
	if !strings.HasPrefix(line, ".") {
		return Instruction{Text: line}, nil
	}

	word, _ := keyword(line)
	if structuralDirectives[word] {
		return nil, p.errorf(n, "%s is not allowed in a method body", word)
	}
	if word == ".annotation" {
		blk, err := p.block(line, n, ".end annotation")
		if err != nil {
			return nil, err
		}
		return Directive{Text: strings.Join(blk, "\n")}, nil
	}
	return Directive{Text: line}, nil
}

// splitDecl separates leading modifiers from the final token of a
// ".class" or ".method" declaration.
func splitDecl(rest string) ([]Modifier, string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, ""
	}
	var mods []Modifier
	for _, f := range fields[:len(fields)-1] {
		mods = append(mods, Modifier(f))
	}
	return mods, fields[len(fields)-1]
}

// ---------------------------------------------------------------------------
// Type descriptors
// ---------------------------------------------------------------------------

// ParseSignature parses a method descriptor such as "(Ljava/lang/String;I)V".
func ParseSignature(s string) (Signature, error) {
	if !strings.HasPrefix(s, "(") {
		return Signature{}, fmt.Errorf("signature %q must start with '('", s)
	}
	closing := strings.IndexByte(s, ')')
	if closing < 0 {
		return Signature{}, fmt.Errorf("signature %q is missing ')'", s)
	}

	var sig Signature
	args := s[1:closing]
	for args != "" {
		t, rest, err := readType(args)
		if err != nil {
			return Signature{}, fmt.Errorf("signature %q: %w", s, err)
		}
		sig.Args = append(sig.Args, t)
		args = rest
	}

	ret, rest, err := readType(s[closing+1:])
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", s, err)
	}
	if rest != "" {
		return Signature{}, fmt.Errorf("signature %q has trailing %q", s, rest)
	}
	sig.Return = ret
	return sig, nil
}

// readType reads one type descriptor from the front of s.
func readType(s string) (Type, string, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i == len(s) {
		return "", "", fmt.Errorf("truncated type %q", s)
	}
	switch s[i] {
	case 'V', 'Z', 'B', 'S', 'C', 'I', 'J', 'F', 'D':
		return Type(s[:i+1]), s[i+1:], nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated class type %q", s)
		}
		end += i
		return Type(s[:end+1]), s[end+1:], nil
	default:
		return "", "", fmt.Errorf("unknown type %q", s[i:])
	}
}
