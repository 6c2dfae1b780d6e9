package optimist

import (
	"errors"
	"fmt"
)

var (
	ErrTooManyPending = errors.New("optimist: too many pending mutations")
	ErrTornDown       = errors.New("optimist: entry torn down")
	ErrNilCall        = errors.New("optimist: backend call is nil")
	ErrNilFetcher     = errors.New("optimist: fetcher is nil")
	ErrMissingID      = errors.New("optimist: mutation has no target id")
	ErrInvalidKind    = errors.New("optimist: invalid mutation kind")
)

// ErrorKind discriminates failures surfaced to callers.
type ErrorKind uint8

const (
	FetchFailed ErrorKind = iota + 1
	MutationFailed
	TooManyPendingMutations
)

func (k ErrorKind) String() string {
	switch k {
	case FetchFailed:
		return "fetch_failed"
	case MutationFailed:
		return "mutation_failed"
	case TooManyPendingMutations:
		return "too_many_pending_mutations"
	default:
		return "unknown"
	}
}

// Error is returned by Load and the mutation methods. Err holds whatever the
// injected call returned (or ErrTooManyPending / ErrTornDown / a ctx error).
type Error struct {
	Kind     ErrorKind
	Key      string
	Op       Kind
	TargetID string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == FetchFailed:
		return fmt.Sprintf("optimist: fetch %q: %v", e.Key, e.Err)
	case e.TargetID != "":
		return fmt.Sprintf("optimist: %s %q in %q: %s: %v", e.Op, e.TargetID, e.Key, e.Kind, e.Err)
	default:
		return fmt.Sprintf("optimist: %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// InvalidateError is returned by a Persister when dropping a snapshot failed
// on both the generation bump and the delete.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
