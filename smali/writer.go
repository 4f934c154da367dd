package smali

import (
	"fmt"
	"io"
	"strings"
)

const indent = "    "

// String renders the class as .smali source.
func (c *Class) String() string {
	var sb strings.Builder
	c.write(&sb)
	return sb.String()
}

// WriteTo writes the class as .smali source to w.
func (c *Class) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, c.String())
	return int64(n), err
}

func (c *Class) write(sb *strings.Builder) {
	sb.WriteString(".class ")
	writeDecl(sb, c.Modifiers, c.Name)
	sb.WriteByte('\n')
	if c.Super != "" {
		fmt.Fprintf(sb, ".super %s\n", c.Super)
	}
	if c.Source != "" {
		fmt.Fprintf(sb, ".source %s\n", c.Source)
	}

	if len(c.Interfaces) > 0 {
		sb.WriteString("\n# interfaces\n")
		for _, iface := range c.Interfaces {
			fmt.Fprintf(sb, ".implements %s\n", iface)
		}
	}

	if len(c.Annotations) > 0 {
		sb.WriteString("\n# annotations\n")
		for i, blk := range c.Annotations {
			if i > 0 {
				sb.WriteByte('\n')
			}
			writeBlock(sb, blk, "")
		}
	}

	if len(c.Fields) > 0 {
		sb.WriteString("\n# fields\n")
		for _, f := range c.Fields {
			sb.WriteString(f.Decl)
			sb.WriteByte('\n')
			if len(f.Annotations) > 0 {
				for _, blk := range f.Annotations {
					writeBlock(sb, blk, indent)
				}
				sb.WriteString(".end field\n")
			}
		}
	}

	if len(c.Methods) > 0 {
		sb.WriteString("\n# methods")
		for _, m := range c.Methods {
			sb.WriteByte('\n')
			m.write(sb)
		}
	}
}

func (m *Method) write(sb *strings.Builder) {
	sb.WriteString(".method ")
	writeDecl(sb, m.Modifiers, m.Name+m.Signature.String())
	sb.WriteByte('\n')

	// Abstract and native methods have no body and usually no count.
	if m.Locals > 0 || !(m.HasModifier(Abstract) || m.HasModifier(Native)) {
		directive := ".locals"
		if m.Registers {
			directive = ".registers"
		}
		fmt.Fprintf(sb, "%s%s %d\n", indent, directive, m.Locals)
	}

	var prev Entry
	for i, e := range m.Instructions {
		if i == 0 {
			sb.WriteByte('\n')
		} else if _, isLabel := e.(Label); isLabel && prev.Kind() == KindInstruction {
			sb.WriteByte('\n')
		}
		if d, ok := e.(Directive); ok && strings.Contains(d.Text, "\n") {
			writeBlock(sb, strings.Split(d.Text, "\n"), indent)
		} else {
			sb.WriteString(indent)
			sb.WriteString(e.String())
			sb.WriteByte('\n')
		}
		prev = e
	}
	sb.WriteString(".end method\n")
}

func writeDecl(sb *strings.Builder, mods []Modifier, name string) {
	for _, m := range mods {
		sb.WriteString(string(m))
		sb.WriteByte(' ')
	}
	sb.WriteString(name)
}

// writeBlock writes the opening and closing lines at prefix and the lines
// between them one level deeper.
func writeBlock(sb *strings.Builder, lines []string, prefix string) {
	for i, line := range lines {
		sb.WriteString(prefix)
		if i > 0 && i < len(lines)-1 {
			sb.WriteString(indent)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}
