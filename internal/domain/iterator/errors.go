package iterator

import "github.com/juju/errors"

// ErrKind classifies engine-level failures per spec.md §7. These are not
// Go error types in the usual sense — they're juju/errors causes, so a
// caller can do errors.Is(err, ErrMoreBudget) after an Annotate chain and
// still get the right answer.
type ErrKind struct {
	name string
}

func (k ErrKind) Error() string { return k.name }

var (
	// ErrNotFound: id or guid missing. Recoverable by skip.
	ErrNotFound = ErrKind{"not found"}
	// ErrOutOfRange: id fell outside [low,high). Recoverable by skip.
	ErrOutOfRange = ErrKind{"out of range"}
	// ErrMoreBudget: operation suspended. Always retriable.
	ErrMoreBudget = ErrKind{"more budget required"}
	// ErrNoMoreData: end of a finite sequence. Terminal until Reset.
	ErrNoMoreData = ErrKind{"no more data"}
	// ErrLexical: malformed cursor or query text.
	ErrLexical = ErrKind{"lexical error"}
	// ErrTooHard: request timer exceeded the hard cap.
	ErrTooHard = ErrKind{"too hard"}
	// ErrInternal: invariant violation.
	ErrInternal = ErrKind{"internal error"}
)

// Wrap annotates err with a message while preserving its cause chain, so
// errors.Is(wrapped, ErrNotFound) keeps working after several layers of
// Wrap.
func Wrap(kind ErrKind, msg string) error {
	return errors.Annotate(kind, msg)
}

// Is reports whether err (or any error it wraps) is the given ErrKind.
func Is(err error, kind ErrKind) bool {
	cause := errors.Cause(err)
	k, ok := cause.(ErrKind)
	return ok && k == kind
}
