package patch

import (
	"errors"
	"strings"
)

// Error kinds, matched with errors.Is.
var (
	ErrMissingMethod = errors.New("missing method")
	ErrMissingAnchor = errors.New("missing anchor")
	ErrFragmentParse = errors.New("fragment parse error")
	ErrClassParse    = errors.New("class parse error")
	ErrIO            = errors.New("i/o error")
)

// Error locates a failure: the file, the method and the operation that was
// running. Kind is one of the Err* values above; Err is the underlying
// cause, if any.
type Error struct {
	Kind   error
	Path   string
	Method string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	var parts []string
	for _, s := range []string{e.Path, e.Method, e.Op} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// withPath fills in the file of an *Error that does not name one yet, and
// prefixes any other error with path.
func withPath(err error, path string) error {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Path == "" {
			pe.Path = path
		}
		return err
	}
	return &Error{Path: path, Err: err}
}
