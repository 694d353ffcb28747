package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jhwbarlow/tcp-audit-common/pkg/event"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/probe"
)

var errNotListenTransition = errors.New("record is not a LISTEN transition")

// Deserialiser is an interface which describes objects which convert a byte
// slice containing a port event into a tcp-audit event.
type deserialiser interface {
	toEvent(data []byte) (*event.Event, error)
}

// PortEventDeserialiser decodes the struct port_event records written by the
// probe.
type portEventDeserialiser struct {
	endianess binary.ByteOrder
	now       func() time.Time
}

func newPortEventDeserialiser(endianess binary.ByteOrder) *portEventDeserialiser {
	return &portEventDeserialiser{
		endianess: endianess,
		now:       time.Now,
	}
}

// ToEvent creates a tcp-audit event from a raw port event. The probe does
// not timestamp records, so the time is that of decoding.
func (d *portEventDeserialiser) toEvent(eventData []byte) (*event.Event, error) {
	time := d.now().UTC()

	portEvent, err := portevent.Decode(eventData, d.endianess)
	if err != nil {
		return nil, fmt.Errorf("decoding event data: %w", err)
	}

	// The probe filters in the kernel, so anything else means a corrupt record
	if !probe.Classify(portEvent.OldState, portEvent.NewState) {
		return nil, fmt.Errorf("%d -> %d: %w", portEvent.OldState, portEvent.NewState, errNotListenTransition)
	}

	oldState, err := convertState(portEvent.OldState)
	if err != nil {
		return nil, fmt.Errorf("converting kernel old TCP state: %w", err)
	}

	newState, err := convertState(portEvent.NewState)
	if err != nil {
		return nil, fmt.Errorf("converting kernel new TCP state: %w", err)
	}

	// An unknown family leaves SourceIP nil rather than failing the event
	var sourceIP net.IP
	if addr, ok := portEvent.EffectiveAddr(); ok {
		sourceIP = net.IP(addr.AsSlice())
	}

	return &event.Event{
		Time:       time,
		PIDOnCPU:   int(portEvent.PID),
		SourceIP:   sourceIP,
		SourcePort: portEvent.Sport,
		OldState:   oldState,
		NewState:   newState,
	}, nil
}
