package evpoll

import (
	"time"

	"github.com/eventkit-go/evpoll/log"
)

// DefaultChangeCapacity is the change buffer size used when
// WithChangeBufferCapacity is not supplied.
const DefaultChangeCapacity = 128

// DefaultEventsCapacity is the initial size of the raw kernel event buffer
// New allocates when WithEventsCapacity is not supplied.
const DefaultEventsCapacity = 256

// Immediately is the Select timeout meaning "poll once, never block."
const Immediately time.Duration = 0

// Indefinitely is the Select timeout meaning "block with no deadline until
// at least one Event is ready."
const Indefinitely time.Duration = -1

// Option configures a Selector at construction time.
type Option func(*options)

type options struct {
	changeCapacity int
	eventsCapacity int
	logger         log.Logger
}

// WithChangeBufferCapacity overrides DefaultChangeCapacity. A larger buffer
// amortizes more Register/Reregister/Deregister calls per kernel entry at
// the cost of a larger implicit flush when it fills.
func WithChangeBufferCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.changeCapacity = n
		}
	}
}

// WithEventsCapacity overrides DefaultEventsCapacity, the initial size of
// the raw kernel event scratch buffer a Selector grows from as needed.
func WithEventsCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventsCapacity = n
		}
	}
}

// WithLogger overrides the package's default logger for diagnostics emitted
// by this Selector (stale-event drops, flush partial failures).
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func defaultOptions() options {
	return options{
		changeCapacity: DefaultChangeCapacity,
		eventsCapacity: DefaultEventsCapacity,
		logger:         log.Default,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
