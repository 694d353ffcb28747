package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const transitionLabel = "transition"

var (
	portEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcp_audit_listen_events_total",
		Help: "The total number of listen port events delivered, by transition",
	}, []string{transitionLabel})

	droppedEventsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_audit_listen_dropped_events_total",
		Help: "The total number of port events the kernel dropped because a perf buffer was full",
	})

	decodeErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_audit_listen_decode_errors_total",
		Help: "The total number of port events which could not be deserialised",
	})
)
