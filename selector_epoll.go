//go:build linux

package evpoll

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/eventkit-go/evpoll/metrics"
)

// rflags, oobflags, and wflags are the epoll bits requested for Readable,
// OutOfBand, and Writable interest respectively, each independent of the
// others per spec: requesting one must never implicitly request another.
// EPOLLRDHUP, EPOLLHUP, and EPOLLERR ride along with whichever side is
// active so Hangup and Error are observable without the caller having to
// ask for them explicitly.
const (
	rflags   = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR
	oobflags = unix.EPOLLPRI | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR
	wflags   = unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR
)

// Selector is a single-owner, non-thread-safe readiness multiplexer backed
// by epoll. Its methods must only ever be called from the goroutine that
// owns it, with the sole exception of a registered Source's Wake, which by
// contract may be called from any goroutine.
type Selector struct {
	fd      int
	opts    options
	regs    map[int]*registration
	changes changeList
	events  []unix.EpollEvent

	closeOnce sync.Once
}

// New creates a Selector backed by a fresh epoll instance.
func New(opts ...Option) (*Selector, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newSyscallError("epoll_create1", -1, err)
	}
	o := buildOptions(opts)
	return &Selector{
		fd:      fd,
		opts:    o,
		regs:    make(map[int]*registration),
		changes: newChangeList(o.changeCapacity),
		events:  make([]unix.EpollEvent, o.eventsCapacity),
	}, nil
}

// Register queues fd's initial registration, validating opts and rejecting
// duplicates per I3. The change is not applied to the kernel until the
// change buffer fills or Select is next called.
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

// Reregister queues an update to fd's interest, token, or PollOpt. Per I2,
// the Token and PollOpt supplied here replace the prior registration's in
// full.
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
// further Event will be delivered for fd, even though the kernel-side
// change may still be pending in the buffer.
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

// flush drains the pending change buffer into the kernel, one EPOLL_CTL_*
// call per change. Unlike kqueue, epoll has no mechanism to batch
// heterogeneous operations (add/mod/del) into a single syscall, so flush
// here is a straightforward loop; the amortization win is in how rarely
// it's called, not in call count per flush.
func (s *Selector) flush() error {
	var first error
	for i := 0; i < s.changes.len(); i++ {
		ch := s.changes.items[i]
		if err := s.apply(ch); err != nil {
			if isEBADF(err) {
				delete(s.regs, ch.fd)
				metrics.Set(metrics.RegistrationsActive, uint64(len(s.regs)))
				s.opts.logger.Debugf("evpoll: dropping stale fd %d during flush: %v", ch.fd, err)
				metrics.Add(metrics.StaleEventsDropped, 1)
				continue
			}
			if first == nil {
				first = err
			}
		}
	}
	s.changes.reset()
	metrics.Add(metrics.ChangesFlushed, 1)
	return first
}

func (s *Selector) apply(ch change) error {
	switch ch.kind {
	case changeAdd:
		ev := unix.EpollEvent{Events: epollMask(ch.interest) | pollOptMask(ch.opts), Fd: int32(ch.fd)}
		if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_ADD, ch.fd, &ev); err != nil {
			return newSyscallError("epoll_ctl_add", ch.fd, err)
		}
	case changeModify:
		ev := unix.EpollEvent{Events: epollMask(ch.interest) | pollOptMask(ch.opts), Fd: int32(ch.fd)}
		if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_MOD, ch.fd, &ev); err != nil {
			return newSyscallError("epoll_ctl_mod", ch.fd, err)
		}
	case changeDelete:
		if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_DEL, ch.fd, nil); err != nil {
			return newSyscallError("epoll_ctl_del", ch.fd, err)
		}
	}
	return nil
}

// epollMask translates Interest and the registration's PollOpt into the
// epoll event bits to request. Edge and Oneshot are expressed via
// EPOLLET/EPOLLONESHOT on the same add/mod call rather than any separate
// mechanism. Readable and OutOfBand are requested independently: a
// registration for one must not silently arm the other.
func epollMask(interest Interest) uint32 {
	var mask uint32
	if interest.Any(Readable) {
		mask |= rflags
	}
	if interest.Any(OutOfBand) {
		mask |= oobflags
	}
	if interest.Any(Writable) {
		mask |= wflags
	}
	return mask
}

func pollOptMask(opt PollOpt) uint32 {
	var mask uint32
	if opt.Contains(Edge) {
		mask |= unix.EPOLLET
	}
	if opt.Contains(Oneshot) {
		mask |= unix.EPOLLONESHOT
	}
	return mask
}

// Select blocks until at least one Event is ready, timeout elapses, or an
// error occurs, then fills events and returns. A timeout of Immediately
// polls once without blocking; Indefinitely blocks with no deadline.
func (s *Selector) Select(events *Events, timeout time.Duration) error {
	if s.changes.len() > 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}
	events.reset()

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	var n int
	var err error
	for {
		n, err = unix.EpollWait(s.fd, s.events, msec)
		if err != nil {
			if isEINTR(err) {
				continue
			}
			return newSyscallError("epoll_wait", s.fd, err)
		}
		break
	}
	if msec == 0 {
		metrics.Add(metrics.SelectNoWait, 1)
	} else {
		metrics.Add(metrics.SelectWait, 1)
	}
	metrics.Add(metrics.SelectEvents, uint64(n))

	for i := 0; i < n; i++ {
		raw := s.events[i]
		fd := int(raw.Fd)
		reg, ok := s.regs[fd]
		if !ok {
			// Deregistered between the kernel reporting readiness and
			// translation; I4 requires we never surface it.
			metrics.Add(metrics.StaleEventsDropped, 1)
			continue
		}
		interests := translateEpollEvents(raw.Events)
		if interests == 0 {
			continue
		}
		// A Oneshot registration stays in regs: EPOLLONESHOT disables it in
		// the kernel, and Reregister's EPOLL_CTL_MOD re-arms it.
		events.push(Event{Interests: interests, Token: reg.token})
	}
	if n == len(s.events) {
		s.growEvents()
	}
	return nil
}

func (s *Selector) growEvents() {
	s.events = make([]unix.EpollEvent, len(s.events)*2)
}

func translateEpollEvents(raw uint32) Interest {
	var i Interest
	if raw&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		i |= Readable
	}
	if raw&unix.EPOLLPRI != 0 {
		i |= OutOfBand
	}
	if raw&unix.EPOLLOUT != 0 {
		i |= Writable
	}
	if raw&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		i |= Hangup
	}
	if raw&unix.EPOLLERR != 0 {
		i |= Errored
	}
	return i
}

// Close releases the underlying epoll instance. It is not safe to call
// Select, Register, Reregister, or Deregister concurrently with Close.
func (s *Selector) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}
