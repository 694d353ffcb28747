package main

import bpf "github.com/aquasecurity/libbpfgo"

// BPFModule is an interface which describes a BPF object holding the
// listen-transition probe and the perf event array it writes to.
type bpfModule interface {
	loadObject() error
	getProgram(name string) (bpfProgram, error)
	initPerfBuf(name string,
		eventsChan chan []byte,
		lostChan chan uint64,
		sizeInPages int) (bpfPerfBuffer, error)
	close()
}

// BPFProgram is an interface which describes a single loaded BPF program.
type bpfProgram interface {
	attachTracepoint(tracepoint string) error
}

// BPFPerfBuffer is an interface which describes the userspace side of a
// per-CPU perf event array.
type bpfPerfBuffer interface {
	Start()
}

// LibBPFGoBPFModule adapts a libbpfgo Module to bpfModule.
type libBPFGoBPFModule struct {
	module *bpf.Module
}

func newLibBPFGoBPFModule(module *bpf.Module) *libBPFGoBPFModule {
	return &libBPFGoBPFModule{module}
}

// LoadObject loads every program and map in the object into the kernel.
// This is where the verifier accepts or rejects the probe.
func (m *libBPFGoBPFModule) loadObject() error {
	return m.module.BPFLoadObject()
}

func (m *libBPFGoBPFModule) getProgram(name string) (bpfProgram, error) {
	program, err := m.module.GetProgram(name)
	if err != nil {
		return nil, err
	}

	return &libBPFGoBPFProgram{program}, nil
}

// InitPerfBuf opens the named perf event array. Records are delivered on
// eventsChan and per-CPU drop counts on lostChan once the buffer is started.
func (m *libBPFGoBPFModule) initPerfBuf(name string,
	eventsChan chan []byte,
	lostChan chan uint64,
	sizeInPages int) (bpfPerfBuffer, error) {
	perfBuf, err := m.module.InitPerfBuf(name, eventsChan, lostChan, sizeInPages)
	if err != nil {
		return nil, err
	}

	return perfBuf, nil
}

// Close detaches the probe and frees the program, maps and perf buffers.
func (m *libBPFGoBPFModule) close() {
	m.module.Close()
}

type libBPFGoBPFProgram struct {
	program *bpf.BPFProg
}

// AttachTracepoint attaches to a tracepoint given as `subsystem:tracepoint`.
func (p *libBPFGoBPFProgram) attachTracepoint(tracepoint string) error {
	_, err := p.program.AttachTracepoint(tracepoint)
	return err
}
