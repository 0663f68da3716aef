package extract

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

// KindCorruptInput means the file cannot be opened, is not a PDF, is
// structurally broken, or is encrypted. It is never retried.
const KindCorruptInput ErrorKind = "CorruptInput"

// Error is returned by the extractors and Validate.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEncrypted is wrapped by a CorruptInput error for encrypted documents.
var ErrEncrypted = errors.New("document is encrypted")

// ErrNotPDF is wrapped by a CorruptInput error when the header is missing.
var ErrNotPDF = errors.New("missing %PDF header")

func corrupt(path string, err error) error {
	return &Error{Kind: KindCorruptInput, Path: path, Err: err}
}

// IsCorruptInput reports whether err is a CorruptInput extraction error.
func IsCorruptInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCorruptInput
}
