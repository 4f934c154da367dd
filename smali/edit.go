package smali

import (
	"errors"
	"fmt"
)

// ErrPosition is returned when an edit is given a position outside the
// current method body.
var ErrPosition = errors.New("position out of range")

// Every edit below checks its positions against the body as it is now.
// Positions from an earlier Locate are only valid if no entry count
// changed since.

// Append adds fragment at the end of the body.
func (m *Method) Append(fragment []Entry) {
	m.Instructions = append(m.Instructions, fragment...)
}

// InsertAfter splices fragment in right after pos. Entries from pos+1 on
// move right by len(fragment).
func (m *Method) InsertAfter(pos int, fragment []Entry) error {
	if pos < 0 || pos >= len(m.Instructions) {
		return fmt.Errorf("insert after %d in %s (len %d): %w", pos, m.Name, len(m.Instructions), ErrPosition)
	}
	m.Instructions = splice(m.Instructions, pos+1, pos+1, fragment)
	return nil
}

// ReplaceRange removes entries [start, end) and puts fragment at start.
func (m *Method) ReplaceRange(start, end int, fragment []Entry) error {
	if start < 0 || end < start || end > len(m.Instructions) {
		return fmt.Errorf("replace [%d, %d) in %s (len %d): %w", start, end, m.Name, len(m.Instructions), ErrPosition)
	}
	m.Instructions = splice(m.Instructions, start, end, fragment)
	return nil
}

// ReplaceBody swaps the whole body for fragment.
func (m *Method) ReplaceBody(fragment []Entry) {
	m.Instructions = splice(m.Instructions, 0, len(m.Instructions), fragment)
}

// InsertLabelBefore inserts a single Label right before pos. pos may equal
// the body length, in which case the label ends the body. Nothing checks
// that an instruction actually branches to the label.
func (m *Method) InsertLabelBefore(pos int, name string) error {
	if pos < 0 || pos > len(m.Instructions) {
		return fmt.Errorf("label %q before %d in %s (len %d): %w", name, pos, m.Name, len(m.Instructions), ErrPosition)
	}
	m.Instructions = splice(m.Instructions, pos, pos, []Entry{Label{Name: name}})
	return nil
}

// EnsureLocals raises the number of local registers to at least n. For a
// method declared with .registers the count also covers the parameters, so
// n is raised by ParamRegisters before comparing.
func (m *Method) EnsureLocals(n int) {
	if m.Registers {
		n += m.ParamRegisters()
	}
	if n > m.Locals {
		m.Locals = n
	}
}

// ParamRegisters returns the registers taken by the parameters: one for
// this unless the method is static, one per argument, and a second one for
// each long or double.
func (m *Method) ParamRegisters() int {
	n := 0
	if !m.HasModifier(Static) {
		n++
	}
	for _, a := range m.Signature.Args {
		n++
		if a == "J" || a == "D" {
			n++
		}
	}
	return n
}

// splice returns entries with [start, end) replaced by insert. It always
// builds a fresh slice so the result never shares a backing array with
// insert.
func splice(entries []Entry, start, end int, insert []Entry) []Entry {
	out := make([]Entry, 0, len(entries)-(end-start)+len(insert))
	out = append(out, entries[:start]...)
	out = append(out, insert...)
	out = append(out, entries[end:]...)
	return out
}
