package main

import (
	"bytes"
	"errors"
	"fmt"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/cilium/ebpf"
)

var errBPFObjectMismatch = errors.New("BPF object does not contain the listen probe")

// BPFModuleCreator is an interface which describes "factories" for bpfModules.
type bpfModuleCreator interface {
	createModule(name string) (bpfModule, error)
}

// LibBPFGoBPFModuleCreator builds a bpfModule from the object bytes returned by
// its bpfObjectLoader, once the object has passed inspectObject.
type libBPFGoBPFModuleCreator struct {
	bpfObjectLoader bpfObjectLoader
	inspectObject   func(obj []byte) error
}

func newLibBPFGoBPFModuleCreator(bpfObjectLoader bpfObjectLoader) *libBPFGoBPFModuleCreator {
	return &libBPFGoBPFModuleCreator{
		bpfObjectLoader: bpfObjectLoader,
		inspectObject:   inspectPortMonitorObject,
	}
}

func (c *libBPFGoBPFModuleCreator) createModule(name string) (bpfModule, error) {
	obj, err := c.bpfObjectLoader.load()
	if err != nil {
		return nil, fmt.Errorf("loading BPF object: %w", err)
	}

	if err := c.inspectObject(obj); err != nil {
		return nil, fmt.Errorf("inspecting BPF object %q: %w", name, err)
	}

	module, err := bpf.NewModuleFromBuffer(obj, name)
	if err != nil {
		return nil, fmt.Errorf("parsing BPF object %q: %w", name, err)
	}

	return newLibBPFGoBPFModule(module), nil
}

// InspectPortMonitorObject parses obj without loading it and checks that it
// carries the tracepoint program and perf event array the runner asks for.
// A stale object installed next to the plugin fails here instead of in the
// verifier.
func inspectPortMonitorObject(obj []byte) error {
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(obj))
	if err != nil {
		return fmt.Errorf("parsing ELF: %w", err)
	}

	prog, ok := spec.Programs[portEventBPFProgramName]
	if !ok {
		return fmt.Errorf("program %s missing: %w", portEventBPFProgramName, errBPFObjectMismatch)
	}
	if prog.Type != ebpf.TracePoint {
		return fmt.Errorf("program %s has type %s: %w", portEventBPFProgramName, prog.Type, errBPFObjectMismatch)
	}

	m, ok := spec.Maps[portEventPerfBufName]
	if !ok {
		return fmt.Errorf("map %s missing: %w", portEventPerfBufName, errBPFObjectMismatch)
	}
	if m.Type != ebpf.PerfEventArray {
		return fmt.Errorf("map %s has type %s: %w", portEventPerfBufName, m.Type, errBPFObjectMismatch)
	}

	return nil
}
