package smali

// Synthesize builds a new method whose body is exactly fragment.
// The fragment slice is copied.
func Synthesize(name string, modifiers []Modifier, sig Signature, locals int, fragment []Entry) *Method {
	body := make([]Entry, len(fragment))
	copy(body, fragment)
	mods := make([]Modifier, len(modifiers))
	copy(mods, modifiers)
	return &Method{
		Name:         name,
		Modifiers:    mods,
		Signature:    sig,
		Locals:       locals,
		Instructions: body,
	}
}

// AddMethod appends m to the class. No uniqueness check is made: adding a
// name that already exists leaves the earlier method in place, and lookups
// by name keep returning the earlier one.
func (c *Class) AddMethod(m *Method) {
	c.Methods = append(c.Methods, m)
}
