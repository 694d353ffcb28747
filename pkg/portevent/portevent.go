// Package portevent defines the fixed-layout record emitted for every TCP
// socket transition into or out of the LISTEN state, and its binary codec.
package portevent

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Size is the encoded size of a PortEvent in bytes.
// The layout must match struct port_event in bpf/port_monitor.bpf.c.
const Size = 36

// Address families, using the Linux numbering carried in the kernel record.
const (
	FamilyINET  uint16 = 2
	FamilyINET6 uint16 = 10
)

// Kernel TCP states relevant to port events (net/tcp_states.h).
const (
	StateClose  int32 = 7
	StateListen int32 = 10
)

// Transition classifies a PortEvent from the consumer's point of view.
type Transition string

const (
	Opened    Transition = "opened"
	Closed    Transition = "closed"
	Unrelated Transition = "unrelated"
)

// PortEvent is a socket entering or leaving the LISTEN state.
// Saddr and SaddrV6 are both always populated from the kernel record;
// Family tells which of them is meaningful.
type PortEvent struct {
	PID      uint32
	Sport    uint16
	Family   uint16
	OldState int32
	NewState int32
	Saddr    [4]byte
	SaddrV6  [16]byte
}

// DecodeError is returned when a buffer is too short to hold a PortEvent.
type DecodeError struct {
	Want, Got int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("port event too short: want %d bytes, got %d", e.Want, e.Got)
}

// MarshalBinaryOrder encodes the event into its wire layout.
func (e PortEvent) MarshalBinaryOrder(order binary.ByteOrder) []byte {
	b := make([]byte, Size)
	order.PutUint32(b[0:4], e.PID)
	order.PutUint16(b[4:6], e.Sport)
	order.PutUint16(b[6:8], e.Family)
	order.PutUint32(b[8:12], uint32(e.OldState))
	order.PutUint32(b[12:16], uint32(e.NewState))
	copy(b[16:20], e.Saddr[:])
	copy(b[20:Size], e.SaddrV6[:])
	return b
}

// Decode reads a PortEvent from data. Trailing bytes beyond Size are
// ignored, as perf records may be padded.
func Decode(data []byte, order binary.ByteOrder) (PortEvent, error) {
	if len(data) < Size {
		return PortEvent{}, &DecodeError{Want: Size, Got: len(data)}
	}

	var e PortEvent
	e.PID = order.Uint32(data[0:4])
	e.Sport = order.Uint16(data[4:6])
	e.Family = order.Uint16(data[6:8])
	e.OldState = int32(order.Uint32(data[8:12]))
	e.NewState = int32(order.Uint32(data[12:16]))
	copy(e.Saddr[:], data[16:20])
	copy(e.SaddrV6[:], data[20:Size])
	return e, nil
}

// EffectiveAddr returns the bound address selected by Family.
// It reports false for families other than AF_INET and AF_INET6.
func (e PortEvent) EffectiveAddr() (netip.Addr, bool) {
	switch e.Family {
	case FamilyINET:
		return netip.AddrFrom4(e.Saddr), true
	case FamilyINET6:
		return netip.AddrFrom16(e.SaddrV6), true
	default:
		return netip.Addr{}, false
	}
}

// Transition reports whether the socket started or stopped listening.
func (e PortEvent) Transition() Transition {
	switch {
	case e.NewState == StateListen:
		return Opened
	case e.OldState == StateListen:
		return Closed
	default:
		return Unrelated
	}
}
