package probe

import "github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"

// Status is the advisory result of emitting an event.
type Status int

const (
	StatusOK Status = iota
	StatusFull
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFull:
		return "full"
	default:
		return "unknown"
	}
}

// OutputChannel is a per-CPU, bounded, non-blocking sink for PortEvents.
// Emit writes to the slot of ctx.CPU and never blocks; when the slot is full
// the event is dropped and StatusFull returned.
type OutputChannel interface {
	Emit(ctx InvocationContext, ev portevent.PortEvent) Status
}
