// Package metrics reports evpoll runtime counters, useful for tuning change
// buffer capacity and spotting excessive wakeups.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// SelectWait counts calls into the kernel wait syscall that actually
	// blocked (timeout != 0).
	SelectWait = iota
	// SelectNoWait counts calls into the kernel wait syscall made with a
	// zero timeout, i.e. a poll. Flushes of the change buffer are not
	// counted here.
	SelectNoWait
	// SelectEvents counts the total number of raw kernel events returned
	// across all waits, before coalescing.
	SelectEvents
	// ChangesFlushed counts flush passes that submitted the pending change
	// buffer to the kernel, one per pass regardless of how many Change
	// records it held. On kqueue, changes submitted together with the wait
	// in Select are not counted.
	ChangesFlushed
	// ChangesCoalesced counts kqueue event pairs merged into a single Event
	// because they shared an (fd, token).
	ChangesCoalesced
	// StaleEventsDropped counts kernel events discarded because their fd
	// was no longer in the registration table at translation time, plus
	// registrations purged because a flush hit EBADF.
	StaleEventsDropped
	// RegistrationsActive is the current count of fds registered with some
	// Selector. It is maintained as a gauge, not a monotonic counter.
	RegistrationsActive
	// Max is the number of defined metrics, used to size the backing array.
	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add adds delta to the named counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Set overwrites the named counter, used for gauge-style metrics such as
// RegistrationsActive.
func Set(name int, value uint64) {
	if name >= Max {
		return
	}
	metrics[name].Store(value)
}

// Get returns the current value of the named counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll returns a snapshot of every counter.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod blocks for d and then prints the delta of every
// counter observed over that period.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	cur := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = cur[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics prints the current value of every counter.
func ShowMetrics() {
	showAll(GetAll())
}

func showAll(m [Max]uint64) {
	fmt.Println("######### evpoll metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	fmt.Printf("%-40s: %d\n", "# selector - blocking waits", m[SelectWait])
	fmt.Printf("%-40s: %d\n", "# selector - zero-timeout waits", m[SelectNoWait])
	fmt.Printf("%-40s: %d\n", "# selector - raw kernel events", m[SelectEvents])
	fmt.Printf("%-40s: %d\n", "# selector - changes flushed", m[ChangesFlushed])
	fmt.Printf("%-40s: %d\n", "# selector - events coalesced", m[ChangesCoalesced])
	fmt.Printf("%-40s: %d\n", "# selector - stale events dropped", m[StaleEventsDropped])
	fmt.Printf("%-40s: %d\n", "# selector - active registrations", m[RegistrationsActive])
	fmt.Printf("\n")
}
