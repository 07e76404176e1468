//go:build linux

package evpoll

import "golang.org/x/sys/unix"

// EventfdSource is a Source backed by Linux eventfd(2). It coalesces
// concurrent Wake calls into a single pending notification, which matches
// the "at least one wakeup is observed" contract callers need and avoids
// unbounded counter growth under a busy waker.
type EventfdSource struct {
	fd int
}

// NewEventfdSource creates an EventfdSource in non-blocking, semaphore-less
// mode so a Drain reads and clears the accumulated counter in one syscall.
func NewEventfdSource() (*EventfdSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, newSyscallError("eventfd", -1, err)
	}
	return &EventfdSource{fd: fd}, nil
}

// Fd implements Source.
func (s *EventfdSource) Fd() int { return s.fd }

// Wake implements Source.
func (s *EventfdSource) Wake() error {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(s.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return newSyscallError("write", s.fd, err)
	}
	return nil
}

// Drain implements Source.
func (s *EventfdSource) Drain() error {
	var buf [8]byte
	_, err := unix.Read(s.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return newSyscallError("read", s.fd, err)
	}
	return nil
}

// Close implements Source.
func (s *EventfdSource) Close() error {
	return unix.Close(s.fd)
}
