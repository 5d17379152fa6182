package crawl

import (
	"errors"
	"fmt"
)

// ErrKind tags an error with its place in the failure taxonomy so callers can
// branch on retryability without matching message strings.
type ErrKind string

// Error kinds.
const (
	// KindTransient covers network and timeout failures; retried a bounded
	// number of times at the point of occurrence.
	KindTransient ErrKind = "transient"
	// KindExtraction covers malformed or unsupported content; never retried
	// within a run, recorded verbatim in the unit's ledger entry.
	KindExtraction ErrKind = "extraction"
	// KindStore covers persistence failures.
	KindStore ErrKind = "store"
	// KindConfig covers invalid bounds or an unreachable store at startup;
	// fatal before any page is walked.
	KindConfig ErrKind = "config"
)

// Error wraps a cause with its taxonomy kind and the operation that failed.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged Error.
func E(kind ErrKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the taxonomy kind of err, or KindTransient when the error
// carries no tag. Untagged errors come from the network boundary, where
// transient is the safe default: the worst case is one wasted retry.
func KindOf(err error) ErrKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// Retryable reports whether a later run may safely re-attempt the operation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindStore:
		return true
	default:
		return false
	}
}

// ErrEndOfListing signals natural exhaustion of the remote source.
var ErrEndOfListing = errors.New("end of listing")
