// Package cuerr provides the CU's typed error kinds, adapted from the
// teacher's cmn/cos error package: small sentinel-carrying error types
// plus a bounded multi-error collector, built on github.com/pkg/errors
// for stack-carrying Wrap/Cause chains at I/O boundaries.
package cuerr

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Kind classifies an error the way spec §7 does, so callers can decide
// whether to retry, surface, or swallow-and-log.
type Kind int

const (
	KindNotFound Kind = iota
	KindInvalid
	KindTransient
	KindOverloaded
	KindEvaluation
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalid:
		return "Invalid"
	case KindTransient:
		return "Transient"
	case KindOverloaded:
		return "Overloaded"
	case KindEvaluation:
		return "EvaluationError"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the CU's typed error: a Kind plus a human-readable message and
// an optional wrapped cause.
type Error struct {
	Kind  Kind
	What  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.What, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.What)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error of the given kind.
func New(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, What: fmt.Sprintf(format, a...)}
}

// Wrap builds a *Error of the given kind, wrapping cause with a stack
// trace via pkg/errors so the originating call site survives logging.
func Wrap(kind Kind, cause error, format string, a ...any) *Error {
	return &Error{Kind: kind, What: fmt.Sprintf(format, a...), Cause: errors.WithStack(cause)}
}

// NotFound, Invalid, Transient, Overloaded, Evaluation, Fatal are
// convenience constructors for the six kinds in spec §7.
func NotFound(format string, a ...any) *Error   { return New(KindNotFound, format, a...) }
func Invalid(format string, a ...any) *Error    { return New(KindInvalid, format, a...) }
func Transient(format string, a ...any) *Error  { return New(KindTransient, format, a...) }
func Overloaded(format string, a ...any) *Error { return New(KindOverloaded, format, a...) }
func Evaluation(format string, a ...any) *Error { return New(KindEvaluation, format, a...) }
func Fatal(format string, a ...any) *Error      { return New(KindFatal, format, a...) }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Errs is a bounded multi-error collector, adapted from cmn/cos.Errs:
// deduplicates by message text and caps how many distinct causes it
// retains so a pathological retry storm can't grow without bound.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Errorf("%d error(s), first: %v", len(e.errs), e.errs[0])
}
