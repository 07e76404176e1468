package evpoll

import "golang.org/x/sys/unix"

// Source is an external wakeup primitive: something that can unblock a
// goroutine parked in Select from another goroutine, without itself being
// part of the Selector's core. A Source is registered like any other
// descriptor via Register and drained like any other readiness event; the
// Selector never constructs or owns one.
type Source interface {
	// Fd returns the descriptor to register for Readable interest.
	Fd() int
	// Wake makes the descriptor readable. Safe to call concurrently with
	// a Select blocked in another goroutine, and concurrently with itself.
	Wake() error
	// Drain consumes whatever Wake enqueued so the descriptor stops
	// reading ready. Call it after observing Readable for this Fd.
	Drain() error
	// Close releases the descriptor.
	Close() error
}

// PipeSource is a Source backed by a self-pipe. Only the read end is
// exposed via Fd; Wake writes a single byte to the write end and Drain
// empties the read end. It works on every platform this package supports,
// making it the portable fallback next to the Linux-only EventfdSource.
type PipeSource struct {
	r, w int
}

// NewPipeSource creates a non-blocking pipe pair for use as a wakeup
// source. It uses unix.Pipe plus explicit non-blocking and close-on-exec
// flags rather than Pipe2, since Pipe2's combined flag syscall is Linux-only
// and PipeSource is meant to work everywhere, including the BSD/kqueue
// backends.
func NewPipeSource() (*PipeSource, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, newSyscallError("pipe", -1, err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, newSyscallError("setnonblock", fd, err)
		}
		unix.CloseOnExec(fd)
	}
	return &PipeSource{r: fds[0], w: fds[1]}, nil
}

// Fd implements Source.
func (s *PipeSource) Fd() int { return s.r }

// Wake implements Source.
func (s *PipeSource) Wake() error {
	_, err := unix.Write(s.w, []byte{0})
	if err != nil && err != unix.EAGAIN {
		return newSyscallError("write", s.w, err)
	}
	return nil
}

// Drain implements Source.
func (s *PipeSource) Drain() error {
	var buf [64]byte
	for {
		_, err := unix.Read(s.r, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return newSyscallError("read", s.r, err)
		}
	}
}

// Close implements Source.
func (s *PipeSource) Close() error {
	err1 := unix.Close(s.r)
	err2 := unix.Close(s.w)
	if err1 != nil {
		return err1
	}
	return err2
}
