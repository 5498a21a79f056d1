package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the pipeline components.
var (
	// ErrBlocked reports a confidently detected verification or blocking page.
	ErrBlocked = errors.New("blocked by verification page")
	// ErrNotFound reports that a strategy or selector produced nothing.
	ErrNotFound = errors.New("not found")
	// ErrTooLarge reports a download that exceeded the configured byte cap.
	ErrTooLarge = errors.New("payload exceeds size cap")
	// ErrInvalidURL reports a URL that failed shape validation.
	ErrInvalidURL = errors.New("invalid url")
	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("permanent failure")
)

// Kind is the closed set of outcomes a pipeline step reports.
type Kind int

// Outcome kinds.
const (
	KindSuccess Kind = iota
	KindNotFound
	KindBlocked
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not_found"
	case KindBlocked:
		return "blocked"
	case KindTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so the retry policy gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify maps an error onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, ErrBlocked):
		return KindBlocked
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindTransient
	}
}
