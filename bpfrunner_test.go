package main

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
)

const (
	testEventChannelSize         = 16
	testDroppedEventsChannelSize = 4
	testPerfBufSizePages         = 8
)

// Never touch the real rlimit from tests
func newTestBPFRunner(creator bpfModuleCreator) *libBPFGoBPFRunner {
	runner := newLibBPFGoBPFRunner(testEventChannelSize,
		testDroppedEventsChannelSize,
		testPerfBufSizePages,
		creator)
	runner.removeMemlock = func() error { return nil }

	return runner
}

// fakeBPFModule stands in for the whole libbpfgo object: the creator, the
// module, its program and perf buffer. Every call is appended to calls.
type fakeBPFModule struct {
	createErr, loadErr, programErr, attachErr, perfBufErr error

	calls []string

	moduleName, programName, tracepoint, perfBufName string
	pages                                            int
	eventChan                                        chan []byte
	lostChan                                         chan uint64
}

func (f *fakeBPFModule) createModule(name string) (bpfModule, error) {
	f.calls = append(f.calls, "create")
	f.moduleName = name
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f, nil
}

func (f *fakeBPFModule) loadObject() error {
	f.calls = append(f.calls, "load")
	return f.loadErr
}

func (f *fakeBPFModule) getProgram(name string) (bpfProgram, error) {
	f.calls = append(f.calls, "program")
	f.programName = name
	if f.programErr != nil {
		return nil, f.programErr
	}
	return f, nil
}

func (f *fakeBPFModule) attachTracepoint(tracepoint string) error {
	f.calls = append(f.calls, "attach")
	f.tracepoint = tracepoint
	return f.attachErr
}

func (f *fakeBPFModule) initPerfBuf(name string,
	eventsChan chan []byte,
	lostChan chan uint64,
	sizeInPages int) (bpfPerfBuffer, error) {
	f.calls = append(f.calls, "perfbuf")
	f.perfBufName = name
	f.eventChan = eventsChan
	f.lostChan = lostChan
	f.pages = sizeInPages
	if f.perfBufErr != nil {
		return nil, f.perfBufErr
	}
	return f, nil
}

func (f *fakeBPFModule) Start() {
	f.calls = append(f.calls, "start")
}

func (f *fakeBPFModule) close() {
	f.calls = append(f.calls, "close")
}

func TestBPFRunnerLifecycle(t *testing.T) {
	fake := new(fakeBPFModule)
	runner := newTestBPFRunner(fake)

	if err := runner.run(); err != nil {
		t.Fatalf("expected nil error, got %v (of type %T)", err, err)
	}

	// Names must match bpf/port_monitor.bpf.c and the kernel's tracepoint
	if fake.moduleName != portEventBPFModuleName {
		t.Errorf("expected module %q, got %q", portEventBPFModuleName, fake.moduleName)
	}
	if fake.programName != portEventBPFProgramName {
		t.Errorf("expected program %q, got %q", portEventBPFProgramName, fake.programName)
	}
	if fake.tracepoint != portEventTracepointName {
		t.Errorf("expected tracepoint %q, got %q", portEventTracepointName, fake.tracepoint)
	}
	if fake.perfBufName != portEventPerfBufName {
		t.Errorf("expected perf buffer %q, got %q", portEventPerfBufName, fake.perfBufName)
	}
	if fake.pages != testPerfBufSizePages {
		t.Errorf("expected perf buffer of %d pages, got %d", testPerfBufSizePages, fake.pages)
	}
	if cap(fake.eventChan) != testEventChannelSize {
		t.Errorf("expected event channel capacity %d, got %d", testEventChannelSize, cap(fake.eventChan))
	}
	if cap(fake.lostChan) != testDroppedEventsChannelSize {
		t.Errorf("expected dropped count channel capacity %d, got %d",
			testDroppedEventsChannelSize,
			cap(fake.lostChan))
	}

	// What the perf buffer writes must come out of the runner's channels
	record := portevent.PortEvent{PID: 1234, Sport: 8080, NewState: TCPListen}.MarshalBinaryOrder(systemEndianess())
	fake.eventChan <- record
	if got := <-runner.eventChannel(); !bytes.Equal(got, record) {
		t.Errorf("expected event data %X, got %X", record, got)
	}

	fake.lostChan <- 3
	if got := <-runner.droppedEventCountChannel(); got != 3 {
		t.Errorf("expected dropped count 3, got %d", got)
	}

	if err := runner.close(); err != nil {
		t.Errorf("expected nil error, got %v (of type %T)", err, err)
	}
	// A second close is a no-op
	if err := runner.close(); err != nil {
		t.Errorf("expected nil error, got %v (of type %T)", err, err)
	}

	want := []string{"create", "load", "program", "attach", "perfbuf", "start", "close"}
	if !reflect.DeepEqual(fake.calls, want) {
		t.Errorf("expected calls %v, got %v", want, fake.calls)
	}
}

func TestBPFRunnerErrors(t *testing.T) {
	mockError := errors.New("mock BPF error")

	tests := []struct {
		name      string
		fake      *fakeBPFModule
		memlock   error
		wantCalls []string
	}{
		{
			name:      "memlock",
			fake:      &fakeBPFModule{},
			memlock:   mockError,
			wantCalls: nil,
		},
		{
			name:      "create module",
			fake:      &fakeBPFModule{createErr: mockError},
			wantCalls: []string{"create"},
		},
		{
			name:      "load object",
			fake:      &fakeBPFModule{loadErr: mockError},
			wantCalls: []string{"create", "load", "close"},
		},
		{
			name:      "get program",
			fake:      &fakeBPFModule{programErr: mockError},
			wantCalls: []string{"create", "load", "program", "close"},
		},
		{
			name:      "attach tracepoint",
			fake:      &fakeBPFModule{attachErr: mockError},
			wantCalls: []string{"create", "load", "program", "attach", "close"},
		},
		{
			name:      "init perf buffer",
			fake:      &fakeBPFModule{perfBufErr: mockError},
			wantCalls: []string{"create", "load", "program", "attach", "perfbuf", "close"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runner := newTestBPFRunner(test.fake)
			runner.removeMemlock = func() error { return test.memlock }

			err := runner.run()
			if !errors.Is(err, mockError) {
				t.Errorf("expected error chain to include %q, got %v", mockError, err)
			}

			// The eventer closes a runner whose start failed; anything the
			// runner got as far as creating must be released
			if err := runner.close(); err != nil {
				t.Errorf("expected nil error, got %v (of type %T)", err, err)
			}

			if !reflect.DeepEqual(test.fake.calls, test.wantCalls) {
				t.Errorf("expected calls %v, got %v", test.wantCalls, test.fake.calls)
			}
		})
	}
}
