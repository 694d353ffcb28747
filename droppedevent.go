package main

import log "github.com/sirupsen/logrus"

// DroppedEventHandler is an interface which describes objects which
// handle dropped events (events which the kernel could not write to
// the perf buffer due to it being full).
type droppedEventHandler interface {
	handle(droppedEventsCount uint64) error
}

// LoggingDroppedEventHandler counts and logs dropped events.
type loggingDroppedEventHandler struct {
	logger *log.Entry
}

func newLoggingDroppedEventHandler(logger *log.Entry) *loggingDroppedEventHandler {
	return &loggingDroppedEventHandler{logger}
}

func (h *loggingDroppedEventHandler) handle(droppedEventsCount uint64) error {
	// The probe never retries, so a drop is final: the only remedies are a
	// bigger perf buffer or a faster consumer.
	droppedEventsCounter.Add(float64(droppedEventsCount))
	h.logger.WithField("count", droppedEventsCount).Warn("Dropped port events")
	return nil
}
