package main

import (
	"fmt"

	"github.com/cilium/ebpf/rlimit"
	log "github.com/sirupsen/logrus"
)

// Must match that used in bpf/port_monitor.bpf.c
const (
	portEventPerfBufName    = "events"
	portEventTracepointName = "sock:inet_sock_set_state"
	portEventBPFProgramName = "tracepoint__sock_inet_sock_set_state"
	portEventBPFModuleName  = "tcp-audit-listen"
)

// BPFRunner is an interface which describes objects which load the listen
// probe into the kernel and deliver the raw port events it emits.
// Counts of events the kernel dropped because a per-CPU buffer was full are
// delivered separately.
type bpfRunner interface {
	run() error
	eventChannel() <-chan []byte
	droppedEventCountChannel() <-chan uint64
	close() error
}

// LibBPFGoBPFRunner loads the probe with libbpfgo and reads it through a
// perf buffer.
type libBPFGoBPFRunner struct {
	eventChannelSize         int
	droppedEventsChannelSize int
	perfBufSizePages         int
	bpfModuleCreator         bpfModuleCreator
	removeMemlock            func() error

	module                bpfModule
	eventChan             <-chan []byte
	droppedEventCountChan <-chan uint64
}

func newLibBPFGoBPFRunner(eventChannelSize int,
	droppedEventsChannelSize int,
	perfBufSizePages int,
	bpfModuleCreator bpfModuleCreator) *libBPFGoBPFRunner {
	return &libBPFGoBPFRunner{
		eventChannelSize:         eventChannelSize,
		droppedEventsChannelSize: droppedEventsChannelSize,
		perfBufSizePages:         perfBufSizePages,
		bpfModuleCreator:         bpfModuleCreator,
		removeMemlock:            rlimit.RemoveMemlock,
	}
}

// Run loads the probe, attaches it to inet_sock_set_state and starts polling
// its perf buffer.
func (r *libBPFGoBPFRunner) run() error {
	// Kernels before 5.11 charge BPF maps against RLIMIT_MEMLOCK
	if err := r.removeMemlock(); err != nil {
		return fmt.Errorf("removing memlock rlimit: %w", err)
	}

	module, err := r.bpfModuleCreator.createModule(portEventBPFModuleName)
	if err != nil {
		return fmt.Errorf("creating BPF module: %w", err)
	}
	r.module = module

	if err := module.loadObject(); err != nil {
		return fmt.Errorf("loading BPF object into kernel: %w", err)
	}

	program, err := module.getProgram(portEventBPFProgramName)
	if err != nil {
		return fmt.Errorf("loading BPF program: %w", err)
	}

	if err = program.attachTracepoint(portEventTracepointName); err != nil {
		return fmt.Errorf("attaching to tracepoint %s: %w", portEventTracepointName, err)
	}

	eventChan := make(chan []byte, r.eventChannelSize)
	droppedEventCountChan := make(chan uint64, r.droppedEventsChannelSize)

	buf, err := module.initPerfBuf(portEventPerfBufName,
		eventChan,
		droppedEventCountChan,
		r.perfBufSizePages)
	if err != nil {
		return fmt.Errorf("initialising perf buffer: %w", err)
	}
	r.eventChan = eventChan
	r.droppedEventCountChan = droppedEventCountChan
	buf.Start()

	log.WithFields(log.Fields{
		"tracepoint": portEventTracepointName,
		"program":    portEventBPFProgramName,
		"pages":      r.perfBufSizePages,
	}).Info("Listen probe attached")

	return nil
}

func (r *libBPFGoBPFRunner) eventChannel() <-chan []byte {
	return r.eventChan
}

func (r *libBPFGoBPFRunner) droppedEventCountChannel() <-chan uint64 {
	return r.droppedEventCountChan
}

// Close detaches and unloads the probe. A runner whose run() failed before
// a module was created has nothing to close.
func (r *libBPFGoBPFRunner) close() error {
	if r.module == nil {
		return nil
	}

	log.Info("Closing BPF module")
	r.module.close()
	r.module = nil

	return nil
}
