// Package tracepoint decodes the argument record of the kernel's
// sock:inet_sock_set_state tracepoint.
//
// The layout follows /sys/kernel/tracing/events/sock/inet_sock_set_state/format,
// which has been stable since Linux 4.16. The only host-dependent part is the
// width of the opaque skaddr pointer, which shifts every later field.
package tracepoint

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Common tracepoint header size (common_type, common_flags,
// common_preempt_count, common_pid).
const commonHeaderSize = 8

var ErrPointerSize = errors.New("pointer size must be 4 or 8")

// CommonHeader is the header present at the start of every tracepoint record.
type CommonHeader struct {
	Type         uint16
	Flags        uint8
	PreemptCount uint8
	PID          int32
}

// InetSockSetState is a single socket state transition record.
type InetSockSetState struct {
	Common   CommonHeader
	SkAddr   uint64 // Opaque; never dereferenced
	OldState int32
	NewState int32
	Sport    uint16
	Dport    uint16
	Family   uint16
	Protocol uint16
	Saddr    [4]byte
	Daddr    [4]byte
	SaddrV6  [16]byte
	DaddrV6  [16]byte
}

// DecodeError is returned when a record buffer ends before the named field.
type DecodeError struct {
	Field     string
	Want, Got int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("inet_sock_set_state record truncated at %s: want %d bytes, got %d",
		e.Field, e.Want, e.Got)
}

// Byte offsets of each field within a record.
type layout struct {
	skaddr, oldState, newState, sport, dport, family, protocol int
	saddr, daddr, saddrV6, daddrV6, size                       int
}

func newLayout(pointerSize int) layout {
	l := layout{skaddr: commonHeaderSize}
	l.oldState = l.skaddr + pointerSize
	l.newState = l.oldState + 4
	l.sport = l.newState + 4
	l.dport = l.sport + 2
	l.family = l.dport + 2
	l.protocol = l.family + 2
	l.saddr = l.protocol + 2
	l.daddr = l.saddr + 4
	l.saddrV6 = l.daddr + 4
	l.daddrV6 = l.saddrV6 + 16
	l.size = l.daddrV6 + 16
	return l
}

// Decoder converts raw tracepoint records into InetSockSetState values.
type Decoder struct {
	order       binary.ByteOrder
	pointerSize int
	layout      layout
}

// NewDecoder creates a decoder for records produced by a host with the given
// byte order and pointer width (in bytes).
func NewDecoder(order binary.ByteOrder, pointerSize int) (*Decoder, error) {
	if pointerSize != 4 && pointerSize != 8 {
		return nil, fmt.Errorf("creating decoder for pointer size %d: %w", pointerSize, ErrPointerSize)
	}

	return &Decoder{
		order:       order,
		pointerSize: pointerSize,
		layout:      newLayout(pointerSize),
	}, nil
}

// Size returns the size of a complete record in bytes.
func (d *Decoder) Size() int {
	return d.layout.size
}

// Decode reads a record from data. Bytes beyond Size are ignored.
func (d *Decoder) Decode(data []byte) (InetSockSetState, error) {
	var rec InetSockSetState
	l := d.layout

	if len(data) < l.size {
		return rec, &DecodeError{Field: l.fieldAt(len(data)), Want: l.size, Got: len(data)}
	}

	rec.Common = CommonHeader{
		Type:         d.order.Uint16(data[0:2]),
		Flags:        data[2],
		PreemptCount: data[3],
		PID:          int32(d.order.Uint32(data[4:8])),
	}

	if d.pointerSize == 8 {
		rec.SkAddr = d.order.Uint64(data[l.skaddr:l.oldState])
	} else {
		rec.SkAddr = uint64(d.order.Uint32(data[l.skaddr:l.oldState]))
	}

	rec.OldState = int32(d.order.Uint32(data[l.oldState:l.newState]))
	rec.NewState = int32(d.order.Uint32(data[l.newState:l.sport]))
	rec.Sport = d.order.Uint16(data[l.sport:l.dport])
	rec.Dport = d.order.Uint16(data[l.dport:l.family])
	rec.Family = d.order.Uint16(data[l.family:l.protocol])
	rec.Protocol = d.order.Uint16(data[l.protocol:l.saddr])
	copy(rec.Saddr[:], data[l.saddr:l.daddr])
	copy(rec.Daddr[:], data[l.daddr:l.saddrV6])
	copy(rec.SaddrV6[:], data[l.saddrV6:l.daddrV6])
	copy(rec.DaddrV6[:], data[l.daddrV6:l.size])

	return rec, nil
}

// Encode writes rec in the same layout Decode reads.
func (d *Decoder) Encode(rec InetSockSetState) []byte {
	l := d.layout
	b := make([]byte, l.size)

	d.order.PutUint16(b[0:2], rec.Common.Type)
	b[2] = rec.Common.Flags
	b[3] = rec.Common.PreemptCount
	d.order.PutUint32(b[4:8], uint32(rec.Common.PID))

	if d.pointerSize == 8 {
		d.order.PutUint64(b[l.skaddr:l.oldState], rec.SkAddr)
	} else {
		d.order.PutUint32(b[l.skaddr:l.oldState], uint32(rec.SkAddr))
	}

	d.order.PutUint32(b[l.oldState:l.newState], uint32(rec.OldState))
	d.order.PutUint32(b[l.newState:l.sport], uint32(rec.NewState))
	d.order.PutUint16(b[l.sport:l.dport], rec.Sport)
	d.order.PutUint16(b[l.dport:l.family], rec.Dport)
	d.order.PutUint16(b[l.family:l.protocol], rec.Family)
	d.order.PutUint16(b[l.protocol:l.saddr], rec.Protocol)
	copy(b[l.saddr:l.daddr], rec.Saddr[:])
	copy(b[l.daddr:l.saddrV6], rec.Daddr[:])
	copy(b[l.saddrV6:l.daddrV6], rec.SaddrV6[:])
	copy(b[l.daddrV6:l.size], rec.DaddrV6[:])

	return b
}

// fieldAt names the field that a buffer of length n cuts short.
func (l layout) fieldAt(n int) string {
	ends := [...]struct {
		name string
		end  int
	}{
		{"common header", l.skaddr},
		{"skaddr", l.oldState},
		{"oldstate", l.newState},
		{"newstate", l.sport},
		{"sport", l.dport},
		{"dport", l.family},
		{"family", l.protocol},
		{"protocol", l.saddr},
		{"saddr", l.daddr},
		{"daddr", l.saddrV6},
		{"saddr_v6", l.daddrV6},
		{"daddr_v6", l.size},
	}

	for _, f := range ends {
		if n < f.end {
			return f.name
		}
	}
	return ""
}
