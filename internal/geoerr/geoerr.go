// Package geoerr defines the closed error taxonomy shared by the HexMesh
// core. Every failure surfaced to a caller carries one of a fixed set of
// kinds, distinguishing caller-input errors (recoverable by retrying with
// different arguments) from store-integrity errors.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is the zero value, used for errors outside the taxonomy.
	KindUnknown Kind = iota

	// KindNotFound indicates a dataset or entry that is not registered.
	KindNotFound

	// KindAlreadyExists indicates a duplicate create.
	KindAlreadyExists

	// KindInvalidColumnType indicates a column type outside the canonical
	// type set.
	KindInvalidColumnType

	// KindInvalidArgument indicates a bad resolution, radius, name or
	// enum value.
	KindInvalidArgument

	// KindIntervalInvalid indicates a missing or surplus time component
	// for the dataset's interval.
	KindIntervalInvalid

	// KindUnsupported indicates an operation applied to the wrong
	// dataset type.
	KindUnsupported

	// KindConfigInvalid indicates a malformed pipeline or loader
	// configuration.
	KindConfigInvalid

	// KindWrongColumnCount indicates an ingestion-time row arity mismatch.
	KindWrongColumnCount

	// KindWrongFileType indicates an input file of the wrong type.
	KindWrongFileType

	// KindArrayLengthMismatch indicates a raster-to-table conversion
	// invariant violation.
	KindArrayLengthMismatch
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindNotFound:            "not_found",
	KindAlreadyExists:       "already_exists",
	KindInvalidColumnType:   "invalid_column_type",
	KindInvalidArgument:     "invalid_argument",
	KindIntervalInvalid:     "interval_invalid",
	KindUnsupported:         "operation_unsupported",
	KindConfigInvalid:       "config_invalid",
	KindWrongColumnCount:    "wrong_column_count",
	KindWrongFileType:       "wrong_file_type",
	KindArrayLengthMismatch: "array_length_mismatch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CallerError reports whether the kind represents invalid caller input
// rather than a store-integrity failure.
func (k Kind) CallerError() bool {
	switch k {
	case KindInvalidColumnType, KindInvalidArgument, KindIntervalInvalid,
		KindUnsupported, KindConfigInvalid, KindWrongColumnCount,
		KindWrongFileType, KindNotFound, KindAlreadyExists:
		return true
	}
	return false
}

// Error is a classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a classified error wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, or KindUnknown if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
