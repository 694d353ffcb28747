package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jhwbarlow/tcp-audit-common/pkg/event"
	"github.com/jhwbarlow/tcp-audit-common/pkg/tcpstate"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
)

var ErrEventerClosed = errors.New("read from closed eventer")

// Eventer delivers an event each time a TCP socket starts or stops listening.
type Eventer struct {
	deserialiser        deserialiser
	droppedEventHandler droppedEventHandler
	bpfRunner           bpfRunner
	logger              *log.Entry

	pending [][]byte // Snapshot of sockets already listening, delivered first
	done    chan struct{}
}

func New() (e event.Eventer, err error) {
	cfg, err := loadConfig(viper.New())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level, _ := log.ParseLevel(cfg.LogLevel) // Validated by loadConfig
	log.SetLevel(level)
	logger := log.WithField("session", uuid.New().String())

	var lister listenerLister
	if cfg.Snapshot {
		procfsLister, err := newProcfsListenerLister(cfg.ProcPath)
		if err != nil {
			return nil, fmt.Errorf("creating listening socket lister: %w", err)
		}
		lister = procfsLister
	}

	deserialiser := newPortEventDeserialiser(systemEndianess())
	droppedEventHandler := newLoggingDroppedEventHandler(logger)
	bpfObjectLoader := newFileBPFObjectLoader(afero.NewOsFs(), cfg.BPFObjectPath)
	bpfModuleCreator := newLibBPFGoBPFModuleCreator(bpfObjectLoader)
	bpfRunner := newLibBPFGoBPFRunner(cfg.EventChannelSize,
		cfg.DroppedEventsChannelSize,
		cfg.PerfBufferPages,
		bpfModuleCreator)

	return newEventer(deserialiser, bpfRunner, droppedEventHandler, lister, logger)
}

// NewEventer attaches the probe and, when a lister is supplied, queues the
// sockets that were listening beforehand. The probe is attached first so that
// no socket can start listening unseen between the snapshot and the attach.
func newEventer(deserialiser deserialiser,
	bpfRunner bpfRunner,
	droppedEventHandler droppedEventHandler,
	lister listenerLister,
	logger *log.Entry) (*Eventer, error) {
	if err := bpfRunner.run(); err != nil {
		if closeErr := bpfRunner.close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Error closing BPF runner after failed start")
		}
		return nil, fmt.Errorf("loading BPF: %w", err)
	}

	var pending [][]byte
	if lister != nil {
		listeners, err := lister.listeners()
		if err != nil {
			// A partial snapshot is still worth delivering
			logger.WithError(err).Warn("Error reading listening sockets")
		}

		for _, listener := range listeners {
			pending = append(pending, listener.MarshalBinaryOrder(systemEndianess()))
		}
		logger.WithField("count", len(pending)).Debug("Queued already-listening sockets")
	}

	return &Eventer{
		deserialiser:        deserialiser,
		bpfRunner:           bpfRunner,
		droppedEventHandler: droppedEventHandler,
		logger:              logger,

		pending: pending,
		done:    make(chan struct{}), // Closing this channel will cause Event() to no longer attempt to read from the BPF perf buffer
	}, nil
}

func (e *Eventer) Event() (*event.Event, error) {
	for {
		select {
		case <-e.done:
			return nil, ErrEventerClosed
		default:
		}

		if len(e.pending) > 0 {
			eventData := e.pending[0]
			e.pending = e.pending[1:]
			return e.toEvent(eventData)
		}

		select {
		case <-e.done:
			return nil, ErrEventerClosed
		case eventData, ok := <-e.bpfRunner.eventChannel():
			if !ok { // The perf buffer closes this channel when the module is closed
				return nil, ErrEventerClosed
			}

			return e.toEvent(eventData)
		case droppedEventsCount, ok := <-e.bpfRunner.droppedEventCountChannel():
			if !ok {
				return nil, ErrEventerClosed
			}

			if err := e.droppedEventHandler.handle(droppedEventsCount); err != nil {
				// Don't return anything, just go around the loop again to find a non-dropped event.
				e.logger.WithError(err).Error("Error handling dropped event")
			}
		}
	}
}

func (e *Eventer) toEvent(eventData []byte) (*event.Event, error) {
	event, err := e.deserialiser.toEvent(eventData)
	if err != nil {
		decodeErrorsCounter.Inc()
		return nil, fmt.Errorf("deserialising event: %w", err)
	}

	transition := transitionOf(event)
	portEventsCounter.WithLabelValues(string(transition)).Inc()
	e.logger.WithFields(log.Fields{
		"pid":        event.PIDOnCPU,
		"port":       event.SourcePort,
		"transition": transition,
	}).Debug("Port event")

	return event, nil
}

func transitionOf(e *event.Event) portevent.Transition {
	switch {
	case e.NewState == tcpstate.StateListen:
		return portevent.Opened
	case e.OldState == tcpstate.StateListen:
		return portevent.Closed
	default:
		return portevent.Unrelated
	}
}

func (e *Eventer) Close() error {
	close(e.done) // Closing this channel will cause Event() to return ErrEventerClosed

	if err := e.bpfRunner.close(); err != nil {
		return fmt.Errorf("closing BPF runner: %w", err)
	}

	return nil
}
