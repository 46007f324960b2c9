// Package loader reads the recipient list and the message body from disk.
//
// Both loaders return a *Error on failure so callers can tell a missing
// input file apart from one that exists but cannot be used.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a loader failure.
type Kind int

const (
	// KindNotFound means the input file does not exist.
	KindNotFound Kind = iota + 1
	// KindRead covers every other failure: unreadable or malformed files,
	// unsupported formats and missing columns.
	KindRead
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindRead:
		return "read failed"
	default:
		return "unknown"
	}
}

var (
	// ErrColumnNotFound is returned when the recipient column is absent from
	// the header row.
	ErrColumnNotFound = errors.New("column not found")

	// ErrUnsupportedFormat is returned for spreadsheet extensions the loader
	// cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)

// Error describes why an input file could not be loaded.
type Error struct {
	Kind  Kind
	Input string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == KindNotFound {
		return fmt.Sprintf("the %s file %s was not found", e.Input, e.Path)
	}
	return fmt.Sprintf("an error occurred while reading the %s file %s: %v", e.Input, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a loader error of KindNotFound.
func IsNotFound(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Kind == KindNotFound
}

// wrap classifies err for the given input and path.
func wrap(input, path string, err error) *Error {
	kind := KindRead
	if errors.Is(err, fs.ErrNotExist) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Input: input, Path: path, Err: err}
}
