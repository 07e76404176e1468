package evpoll

import "github.com/pkg/errors"

// PollOpt is a bitset describing delivery policy for a registration.
type PollOpt uint8

const (
	// Edge notifies once per readiness transition; the caller must drain
	// fully until a would-block indication.
	Edge PollOpt = 1 << iota
	// Level re-notifies on every Select call while readiness persists.
	Level
	// Oneshot delivers exactly one Event, then auto-disables the
	// registration until the caller reregisters.
	Oneshot
)

// Contains reports whether o has every bit set in other.
func (o PollOpt) Contains(other PollOpt) bool {
	return o&other == other
}

// Validate reports whether o specifies exactly one of Edge or Level.
// Oneshot may combine with either. Register and Reregister call this before
// queuing any change, per the spec's "error condition reported to the
// caller at register time".
func (o PollOpt) Validate() error {
	both := o&(Edge|Level) == Edge|Level
	neither := o&(Edge|Level) == 0
	if both || neither {
		return &Error{
			Kind: KindInvalidArgument,
			Op:   "validate",
			Fd:   -1,
			Err:  errors.Errorf("PollOpt %v must set exactly one of Edge or Level", o),
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (o PollOpt) String() string {
	if o == 0 {
		return "NONE"
	}
	var str string
	name := func(bit PollOpt, label string) {
		if o&bit == 0 {
			return
		}
		if str != "" {
			str += "|"
		}
		str += label
	}
	name(Edge, "EDGE")
	name(Level, "LEVEL")
	name(Oneshot, "ONESHOT")
	return str
}
