//go:build freebsd || dragonfly || darwin

package evpoll

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/eventkit-go/evpoll/metrics"
)

// Selector is a single-owner, non-thread-safe readiness multiplexer backed
// by kqueue. Its methods must only ever be called from the goroutine that
// owns it, with the sole exception of a registered Source's Wake, which by
// contract may be called from any goroutine.
type Selector struct {
	fd      int
	opts    options
	regs    map[int]*registration
	changes changeList
	events  []unix.Kevent_t

	// translateFds is a reused scratch slice mapping this Select call's
	// already-emitted events to their index in the Events container, so
	// a second kevent for the same fd (read and write filters firing in
	// the same batch) coalesces into one Event instead of two. Reused
	// across calls via truncation to avoid allocating per Select.
	translateFds []int

	closeOnce sync.Once
}

// New creates a Selector backed by a fresh kqueue instance.
func New(opts ...Option) (*Selector, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, newSyscallError("kqueue", -1, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, newSyscallError("fcntl", fd, err)
	}
	o := buildOptions(opts)
	return &Selector{
		fd:           fd,
		opts:         o,
		regs:         make(map[int]*registration),
		changes:      newChangeList(o.changeCapacity),
		events:       make([]unix.Kevent_t, o.eventsCapacity),
		translateFds: make([]int, 0, o.eventsCapacity),
	}, nil
}

// Register queues fd's initial registration, validating opt and rejecting
// duplicates per I3.
func (s *Selector) Register(fd int, token Token, interest Interest, opt PollOpt) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	if _, ok := s.regs[fd]; ok {
		return &Error{Kind: KindAlreadyExists, Op: "register", Fd: fd, Err: errors.Errorf("fd %d already registered", fd)}
	}
	s.regs[fd] = &registration{token: token, interest: interest, opts: opt}
	metrics.Set(metrics.RegistrationsActive, uint64(len(s.regs)))
	return s.queue(change{fd: fd, token: token, interest: interest, opts: opt, kind: changeAdd})
}

// Reregister queues an update to fd's interest, token, or PollOpt, replacing
// the prior registration's in full per I2.
func (s *Selector) Reregister(fd int, token Token, interest Interest, opt PollOpt) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	reg, ok := s.regs[fd]
	if !ok {
		return &Error{Kind: KindNotFound, Op: "reregister", Fd: fd, Err: errors.Errorf("fd %d not registered", fd)}
	}
	prev := reg.interest
	reg.token, reg.interest, reg.opts = token, interest, opt
	return s.queue(change{fd: fd, token: token, interest: interest, opts: opt, kind: changeModify, prevInterest: prev})
}

// Deregister queues removal of fd. Per I4, once this call returns no
// further Event will be delivered for fd.
func (s *Selector) Deregister(fd int) error {
	reg, ok := s.regs[fd]
	if !ok {
		return &Error{Kind: KindNotFound, Op: "deregister", Fd: fd, Err: errors.Errorf("fd %d not registered", fd)}
	}
	delete(s.regs, fd)
	metrics.Set(metrics.RegistrationsActive, uint64(len(s.regs)))
	return s.queue(change{fd: fd, kind: changeDelete, prevInterest: reg.interest})
}

func (s *Selector) queue(ch change) error {
	if s.changes.full() {
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.changes.push(ch)
	return nil
}

// toKevents expands one logical change into the 0, 1, or 2 raw kevents
// kqueue needs: one per filter (EVFILT_READ, EVFILT_WRITE) that must be
// added, enabled, or deleted to move the registration from prevInterest to
// the new state. withReceipt tags every produced kevent with EV_RECEIPT so
// a batched submission can attribute success or failure per entry.
func toKevents(ch change, withReceipt bool, out []unix.Kevent_t) []unix.Kevent_t {
	wantRead := ch.kind != changeDelete && ch.interest.Any(Readable|OutOfBand)
	wantWrite := ch.kind != changeDelete && ch.interest.Any(Writable)
	hadRead := ch.prevInterest.Any(Readable | OutOfBand)
	hadWrite := ch.prevInterest.Any(Writable)

	addFlags := func() uint16 {
		var f uint16 = unix.EV_ADD | unix.EV_ENABLE
		if ch.opts.Contains(Edge) {
			f |= unix.EV_CLEAR
		}
		if ch.opts.Contains(Oneshot) {
			f |= unix.EV_ONESHOT
		}
		if withReceipt {
			f |= unix.EV_RECEIPT
		}
		return f
	}
	delFlags := func() uint16 {
		f := uint16(unix.EV_DELETE)
		if withReceipt {
			f |= unix.EV_RECEIPT
		}
		return f
	}

	if wantRead {
		out = append(out, newKevent(ch.fd, unix.EVFILT_READ, addFlags()))
	} else if hadRead {
		out = append(out, newKevent(ch.fd, unix.EVFILT_READ, delFlags()))
	}
	if wantWrite {
		out = append(out, newKevent(ch.fd, unix.EVFILT_WRITE, addFlags()))
	} else if hadWrite {
		out = append(out, newKevent(ch.fd, unix.EVFILT_WRITE, delFlags()))
	}
	return out
}

// newKevent builds a raw kevent for fd. Tokens are never stored in Udata:
// translate looks registrations up by Ident (the fd) in the Selector's own
// map, which sidesteps kqueue's pointer-width Udata slot entirely and
// avoids the unsafe pointer-punning a Desc-pointer-in-Udata scheme would
// need.
func newKevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{
		Ident:  newKeventIdent(fd),
		Filter: filter,
		Flags:  flags,
	}
}

// flush drains the pending change buffer into the kernel in a single
// kevent(2) call. Every produced kevent carries EV_RECEIPT and a matching
// slot in the output buffer, so one syscall yields precise per-entry
// success/failure instead of only the first error kqueue would otherwise
// report for a multi-change batch.
func (s *Selector) flush() error {
	var kevs []unix.Kevent_t
	for i := 0; i < s.changes.len(); i++ {
		kevs = toKevents(s.changes.items[i], true, kevs)
	}
	s.changes.reset()
	if len(kevs) == 0 {
		return nil
	}
	receipts := make([]unix.Kevent_t, len(kevs))
	zero := unix.Timespec{}
	n, err := unix.Kevent(s.fd, kevs, receipts, &zero)
	metrics.Add(metrics.ChangesFlushed, 1)
	if err != nil && !isEINTR(err) {
		return newSyscallError("kevent_flush", s.fd, err)
	}
	var first error
	for i := 0; i < n; i++ {
		r := receipts[i]
		if r.Flags&unix.EV_ERROR == 0 || r.Data == 0 {
			continue
		}
		fd := int(r.Ident)
		errno := unix.Errno(uintptr(r.Data))
		if errno == unix.ENOENT {
			// A delete for a filter that was never armed (interest
			// narrowed before the add ever landed); not a failure.
			continue
		}
		if errno == unix.EBADF {
			delete(s.regs, fd)
			metrics.Set(metrics.RegistrationsActive, uint64(len(s.regs)))
			s.opts.logger.Debugf("evpoll: dropping stale fd %d during flush: %v", fd, errno)
			metrics.Add(metrics.StaleEventsDropped, 1)
			continue
		}
		if first == nil {
			first = newSyscallError("kevent_flush", fd, errno)
		}
	}
	return first
}

// Select blocks until at least one Event is ready, timeout elapses, or an
// error occurs, then fills events and returns.
//
// The fast path submits this call's pending changes (without EV_RECEIPT)
// combined with the wait itself in one kevent call, saving a syscall versus
// flushing first and waiting second. If that combined call errors, Select
// falls back to flush's precise per-entry attribution and retries the wait
// alone.
func (s *Selector) Select(events *Events, timeout time.Duration) error {
	events.reset()

	var kevs []unix.Kevent_t
	for i := 0; i < s.changes.len(); i++ {
		kevs = toKevents(s.changes.items[i], false, kevs)
	}
	changesPending := s.changes.len() > 0

	ts, waitedZero := timespecFor(timeout)

	var n int
	var err error
	for {
		n, err = unix.Kevent(s.fd, kevs, s.events, ts)
		if err != nil {
			if isEINTR(err) {
				kevs = nil
				continue
			}
			if changesPending {
				return s.fallbackFlushAndWait(events, ts)
			}
			return newSyscallError("kevent", s.fd, err)
		}
		break
	}
	s.changes.reset()
	if waitedZero {
		metrics.Add(metrics.SelectNoWait, 1)
	} else {
		metrics.Add(metrics.SelectWait, 1)
	}
	metrics.Add(metrics.SelectEvents, uint64(n))

	s.translate(n, events)
	if n == len(s.events) {
		s.growEvents()
	}
	return nil
}

// fallbackFlushAndWait is taken when the combined submit-and-wait kevent
// call in Select fails; it re-submits the same changes through flush's
// EV_RECEIPT path to find out precisely which one was bad, purges it, and
// retries the wait with no changes attached.
func (s *Selector) fallbackFlushAndWait(events *Events, ts *unix.Timespec) error {
	if err := s.flush(); err != nil {
		return err
	}
	n, err := unix.Kevent(s.fd, nil, s.events, ts)
	if err != nil {
		if isEINTR(err) {
			return nil
		}
		return newSyscallError("kevent", s.fd, err)
	}
	metrics.Add(metrics.SelectEvents, uint64(n))
	s.translate(n, events)
	if n == len(s.events) {
		s.growEvents()
	}
	return nil
}

// translate converts the first n raw kevents in s.events into coalesced
// Events, keyed by fd rather than Token since two distinct fds may share a
// caller-chosen token.
func (s *Selector) translate(n int, events *Events) {
	s.translateFds = s.translateFds[:0]
	for i := 0; i < n; i++ {
		raw := s.events[i]
		fd := int(raw.Ident)
		reg, ok := s.regs[fd]
		if !ok {
			metrics.Add(metrics.StaleEventsDropped, 1)
			continue
		}
		interest := translateKqueueEvent(raw)
		if interest == 0 {
			continue
		}
		if idx := indexOfFd(s.translateFds, fd); idx >= 0 {
			ev := events.At(idx)
			ev.Interests |= interest
			events.items[idx] = ev
			metrics.Add(metrics.ChangesCoalesced, 1)
		} else {
			s.translateFds = append(s.translateFds, fd)
			events.push(Event{Interests: interest, Token: reg.token})
		}
		if reg.opts.Contains(Oneshot) {
			delete(s.regs, fd)
			metrics.Set(metrics.RegistrationsActive, uint64(len(s.regs)))
		}
	}
}

func indexOfFd(fds []int, fd int) int {
	for i, v := range fds {
		if v == fd {
			return i
		}
	}
	return -1
}

func translateKqueueEvent(raw unix.Kevent_t) Interest {
	var i Interest
	switch raw.Filter {
	case unix.EVFILT_READ:
		i |= Readable
	case unix.EVFILT_WRITE:
		i |= Writable
	}
	if raw.Flags&unix.EV_EOF != 0 {
		i |= Hangup
		// Fflags carries the errno (e.g. ECONNRESET) that caused the EOF,
		// when there is one; a plain close sets EV_EOF with Fflags == 0.
		if raw.Fflags != 0 {
			i |= Errored
		}
	}
	if raw.Flags&unix.EV_OOBAND != 0 {
		i |= OutOfBand
	}
	return i
}

func timespecFor(timeout time.Duration) (*unix.Timespec, bool) {
	if timeout < 0 {
		return nil, false
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	return &ts, timeout == 0
}

func (s *Selector) growEvents() {
	s.events = make([]unix.Kevent_t, len(s.events)*2)
}

// Close releases the underlying kqueue instance. It is not safe to call
// Select, Register, Reregister, or Deregister concurrently with Close.
func (s *Selector) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}
