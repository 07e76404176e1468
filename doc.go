// Package evpoll is a readiness-based, non-blocking I/O event notification
// library. It provides a thin, zero-allocation-in-steady-state abstraction
// over the operating system's scalable event facility — epoll on Linux,
// kqueue on the BSDs and macOS — suitable for building network servers.
//
// The Selector is the event demultiplexer: it owns one kernel polling
// descriptor, translates a portable (interest, options, token)
// registration into the platform's native change protocol, and delivers
// coalesced readiness events to the caller through Select. A Selector is
// single-owner: exactly one goroutine may call Register, Reregister,
// Deregister, and Select on it. Other goroutines that need to interrupt a
// pending Select must do so through a registered wakeup Source (see
// EventfdSource and PipeSource) — the Selector itself has no notion of
// cross-goroutine wakeup.
//
//	sel, err := evpoll.New()
//	...
//	sel.Register(fd, evpoll.Token(1), evpoll.Readable, evpoll.Level)
//	events := evpoll.NewEvents(128)
//	for {
//	    if err := sel.Select(events, evpoll.Indefinitely); err != nil {
//	        ...
//	    }
//	    for i := 0; i < events.Len(); i++ {
//	        ev := events.At(i)
//	        // dispatch on ev.Token, inspect ev.Interests
//	    }
//	}
package evpoll
