package evpoll

// Token is an opaque, caller-chosen identifier returned verbatim with every
// Event for its registration. evpoll never interprets it; callers must not
// assume any ordering or uniqueness beyond what they themselves establish.
//
// Token is a pointer-width integer. Neither backend stores it in the
// kernel's per-registration user-data slot: the kernel entry carries only
// the fd, and the Selector looks the Token up by fd in its own
// registration table.
type Token uintptr

// Event is a single readiness delivery: the set of Interest bits that
// fired, and the Token of the registration they fired for. Interests is
// never empty. Hangup and Errored may appear with or without Readable or
// Writable; a receiver should treat unexpected bit combinations as
// forward-compatible noise rather than an error.
type Event struct {
	Interests Interest
	Token     Token
}

// Events is a reusable, bounded container of Event records filled by
// Select. Callers construct one per event loop and reuse it across calls;
// its contents are only valid until the next call to Select.
type Events struct {
	items []Event
}

// NewEvents allocates an Events container with room for capacity events
// before Select would need to grow it. capacity should match the scale of
// concurrent readiness expected per wait.
func NewEvents(capacity int) *Events {
	return &Events{items: make([]Event, 0, capacity)}
}

// Len returns the number of Event records filled by the most recent Select.
func (e *Events) Len() int {
	return len(e.items)
}

// At returns the i'th Event, 0 <= i < Len().
func (e *Events) At(i int) Event {
	return e.items[i]
}

// Capacity returns the number of events the container can hold without
// reallocating.
func (e *Events) Capacity() int {
	return cap(e.items)
}

func (e *Events) reset() {
	e.items = e.items[:0]
}

func (e *Events) push(ev Event) {
	e.items = append(e.items, ev)
}
