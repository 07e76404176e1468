package evpoll

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Kind classifies an Error so callers can branch on failure category
// without parsing error text.
type Kind int

const (
	// KindIO is a generic wrapped OS error with the platform errno
	// preserved; none of the more specific kinds below apply.
	KindIO Kind = iota
	// KindResource means the kernel refused due to limits (EMFILE, ENOMEM,
	// ENFILE).
	KindResource
	// KindInvalidArgument means the caller supplied incoherent PollOpt
	// bits.
	KindInvalidArgument
	// KindNotFound means Reregister or Deregister targeted an fd this
	// Selector does not have registered.
	KindNotFound
	// KindAlreadyExists means Register targeted an fd already registered
	// with this Selector.
	KindAlreadyExists
	// kindInterrupted is internal: EINTR during Select is retried
	// transparently and never surfaced as this kind.
	kindInterrupted
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case kindInterrupted:
		return "interrupted"
	default:
		return "io"
	}
}

// Error is the error type returned by every Selector operation. Fd is -1
// when the failure is not attributable to a single descriptor (e.g.
// InvalidArgument from Validate, or the initial kernel handle creation in
// New).
type Error struct {
	Kind Kind
	Op   string
	Fd   int
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Fd >= 0 {
		return fmt.Sprintf("evpoll: %s (fd=%d): %v", e.Op, e.Fd, e.Err)
	}
	return fmt.Sprintf("evpoll: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newSyscallError wraps a raw kernel error with os.NewSyscallError (for a
// readable message carrying the syscall name) and classifies it into a
// Kind.
func newSyscallError(op string, fd int, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Fd: fd, Err: os.NewSyscallError(op, err)}
}

// classify maps a raw errno to the Kind a caller would want to branch on.
func classify(err error) Kind {
	switch {
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE), errors.Is(err, unix.ENOMEM):
		return KindResource
	default:
		return KindIO
	}
}

// isEBADF reports whether err is, or wraps, EBADF — the signal the
// Selector uses to decide a registration is gone and should be purged
// rather than surfaced as a retryable failure.
func isEBADF(err error) bool {
	return errors.Is(err, unix.EBADF)
}

// isEINTR reports whether err is, or wraps, EINTR.
func isEINTR(err error) bool {
	return errors.Is(err, unix.EINTR)
}
