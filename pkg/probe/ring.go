package probe

import (
	"sync/atomic"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
)

// PerCPURing is an in-memory OutputChannel with one bounded ring per CPU.
// Each ring has a single producer (the invocation on that CPU) and a single
// consumer, and is coordinated with atomics only.
type PerCPURing struct {
	rings []cpuRing
}

type cpuRing struct {
	slots []portevent.PortEvent
	head  atomic.Uint64 // Next slot to read; written by the consumer
	tail  atomic.Uint64 // Next slot to write; written by the producer
	lost  atomic.Uint64
}

// NewPerCPURing creates rings for cpus CPUs, each holding up to capacity
// events. Non-positive arguments are raised to 1.
func NewPerCPURing(cpus, capacity int) *PerCPURing {
	if cpus < 1 {
		cpus = 1
	}
	if capacity < 1 {
		capacity = 1
	}

	r := &PerCPURing{rings: make([]cpuRing, cpus)}
	for i := range r.rings {
		r.rings[i].slots = make([]portevent.PortEvent, capacity)
	}

	return r
}

// CPUs returns the number of per-CPU rings.
func (r *PerCPURing) CPUs() int {
	return len(r.rings)
}

// Emit copies ev into the ring of ctx.CPU. An event for a CPU without a ring
// is dropped.
func (r *PerCPURing) Emit(ctx InvocationContext, ev portevent.PortEvent) Status {
	if ctx.CPU < 0 || ctx.CPU >= len(r.rings) {
		return StatusFull
	}

	ring := &r.rings[ctx.CPU]
	tail := ring.tail.Load()
	if tail-ring.head.Load() >= uint64(len(ring.slots)) {
		ring.lost.Add(1)
		return StatusFull
	}

	ring.slots[tail%uint64(len(ring.slots))] = ev
	ring.tail.Store(tail + 1)

	return StatusOK
}

// Read removes and returns the oldest event emitted on cpu.
func (r *PerCPURing) Read(cpu int) (portevent.PortEvent, bool) {
	if cpu < 0 || cpu >= len(r.rings) {
		return portevent.PortEvent{}, false
	}

	ring := &r.rings[cpu]
	head := ring.head.Load()
	if head == ring.tail.Load() {
		return portevent.PortEvent{}, false
	}

	ev := ring.slots[head%uint64(len(ring.slots))]
	ring.head.Store(head + 1)

	return ev, true
}

// Drain removes every buffered event. Events from the same CPU keep their
// emission order; CPUs are visited in index order.
func (r *PerCPURing) Drain() []portevent.PortEvent {
	var events []portevent.PortEvent
	for cpu := range r.rings {
		for {
			ev, ok := r.Read(cpu)
			if !ok {
				break
			}
			events = append(events, ev)
		}
	}

	return events
}

// Lost returns how many events were dropped on cpu because its ring was full.
func (r *PerCPURing) Lost(cpu int) uint64 {
	if cpu < 0 || cpu >= len(r.rings) {
		return 0
	}

	return r.rings[cpu].lost.Load()
}
