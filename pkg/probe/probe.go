// Package probe is the per-transition pipeline run on every
// sock:inet_sock_set_state firing: classify the transition, build a
// PortEvent when it involves LISTEN, and emit it on the invoking CPU's slot
// of an output channel.
//
// It mirrors bpf/port_monitor.bpf.c. Nothing here allocates per invocation,
// blocks, or keeps state between invocations.
package probe

import (
	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/tracepoint"
)

// TCPListen is the kernel's TCP_LISTEN state (net/tcp_states.h).
const TCPListen int32 = 10

// License is declared to the BPF loader by the kernel program.
// It must be GPL-compatible for the helpers the program calls.
const License = "Dual MIT/GPL"

// Identity is the combined tgid/pid value returned by
// bpf_get_current_pid_tgid: the process id is in the upper 32 bits.
type Identity uint64

// PID returns the process (thread group) id.
func (id Identity) PID() uint32 {
	return uint32(id >> 32)
}

// TID returns the thread id.
func (id Identity) TID() uint32 {
	return uint32(id)
}

// NewIdentity packs a process and thread id.
func NewIdentity(pid, tid uint32) Identity {
	return Identity(uint64(pid)<<32 | uint64(tid))
}

// InvocationContext describes where an invocation is running.
type InvocationContext struct {
	CPU int
}

// Classify reports whether a transition enters or leaves LISTEN.
func Classify(oldState, newState int32) bool {
	return oldState == TCPListen || newState == TCPListen
}

// Build assembles the PortEvent for a transition. Both source address
// arrays are copied whatever the family is.
func Build(rec tracepoint.InetSockSetState, id Identity) portevent.PortEvent {
	return portevent.PortEvent{
		PID:      id.PID(),
		Sport:    rec.Sport,
		Family:   rec.Family,
		OldState: rec.OldState,
		NewState: rec.NewState,
		Saddr:    rec.Saddr,
		SaddrV6:  rec.SaddrV6,
	}
}
