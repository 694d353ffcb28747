package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/prometheus/procfs"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
)

// ListenerLister is an interface which describes objects which list the TCP
// sockets already listening when the probe is attached.
type listenerLister interface {
	listeners() ([]portevent.PortEvent, error)
}

// ProcfsListenerLister reads /proc/net/tcp and /proc/net/tcp6. The owning
// process is not recorded there, so the events it returns carry PID 0.
type procfsListenerLister struct {
	fs procfs.FS
}

func newProcfsListenerLister(procPath string) (*procfsListenerLister, error) {
	procFS, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("opening procfs at %s: %w", procPath, err)
	}

	return &procfsListenerLister{procFS}, nil
}

// Listeners returns one synthetic CLOSE -> LISTEN event per listening socket.
// A host without IPv6 has no tcp6 table, which is not an error.
func (l *procfsListenerLister) listeners() ([]portevent.PortEvent, error) {
	var events []portevent.PortEvent
	var errs error

	tcp, err := l.fs.NetTCP()
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reading net/tcp: %w", err))
	}
	for _, line := range tcp {
		if line.St != uint64(TCPListen) {
			continue
		}

		ev := listenerEvent(uint16(unix.AF_INET), line.LocalPort)
		copy(ev.Saddr[:], line.LocalAddr.To4())
		events = append(events, ev)
	}

	tcp6, err := l.fs.NetTCP6()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = multierr.Append(errs, fmt.Errorf("reading net/tcp6: %w", err))
	}
	for _, line := range tcp6 {
		if line.St != uint64(TCPListen) {
			continue
		}

		ev := listenerEvent(uint16(unix.AF_INET6), line.LocalPort)
		copy(ev.SaddrV6[:], line.LocalAddr.To16())
		events = append(events, ev)
	}

	return events, errs
}

func listenerEvent(family uint16, port uint64) portevent.PortEvent {
	return portevent.PortEvent{
		Sport:    uint16(port),
		Family:   family,
		OldState: TCPClose,
		NewState: TCPListen,
	}
}
