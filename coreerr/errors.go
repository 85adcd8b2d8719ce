// Package coreerr defines the error taxonomy of the observation/asset
// store (spec §7): a small set of sentinel error kinds that callers can
// test for with errors.Is/errors.Cause, each wrapped with
// github.com/pkg/errors so logs keep a stack trace back to the call that
// produced it.
package coreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel kinds. Compare with errors.Is after unwrapping, or use the
// Is* helpers below.
var (
	// ErrParse: data-set/table parse failure. The offending observation
	// is dropped; the pipeline continues.
	ErrParse = errors.New("parse error")

	// ErrProperty: an entity is missing a required property (e.g. an
	// asset with no assetId).
	ErrProperty = errors.New("property error")

	// ErrDuplicateTypeMismatch: an asset upsert's type differs from the
	// type already stored under that asset id.
	ErrDuplicateTypeMismatch = errors.New("duplicate asset type mismatch")

	// ErrOutOfRange: a query asked for a sequence older than
	// firstSequence().
	ErrOutOfRange = errors.New("sequence out of range")
)

// Parse wraps ErrParse with context, e.g. the offending token and data
// item id.
func Parse(format string, args ...interface{}) error {
	return errors.Wrap(ErrParse, fmt.Sprintf(format, args...))
}

// Property wraps ErrProperty with context.
func Property(format string, args ...interface{}) error {
	return errors.Wrap(ErrProperty, fmt.Sprintf(format, args...))
}

// DuplicateTypeMismatch wraps ErrDuplicateTypeMismatch with the
// conflicting types.
func DuplicateTypeMismatch(id, have, want string) error {
	return errors.Wrapf(ErrDuplicateTypeMismatch, "asset %s: stored type %q, incoming type %q", id, have, want)
}

// OutOfRange wraps ErrOutOfRange with the requested and oldest-retained
// sequence.
func OutOfRange(requested, first uint64) error {
	return errors.Wrapf(ErrOutOfRange, "sequence %d requested, first retained is %d", requested, first)
}

// IsParse reports whether err (or its cause chain) is a parse error.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsProperty reports whether err (or its cause chain) is a property error.
func IsProperty(err error) bool { return errors.Is(err, ErrProperty) }

// IsDuplicateTypeMismatch reports whether err is an asset type conflict.
func IsDuplicateTypeMismatch(err error) bool { return errors.Is(err, ErrDuplicateTypeMismatch) }

// IsOutOfRange reports whether err is an out-of-window sequence query.
func IsOutOfRange(err error) bool { return errors.Is(err, ErrOutOfRange) }
