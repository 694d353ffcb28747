package main

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/portevent"
)

const procNetTCPHeader = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n"

func writeProcNetFixture(t *testing.T, files map[string]string) string {
	t.Helper()

	procPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(procPath, "net"), 0o755); err != nil {
		t.Fatalf("creating fixture directory: %v", err)
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(procPath, "net", name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}

	return procPath
}

func TestProcfsListenerLister(t *testing.T) {
	procPath := writeProcNetFixture(t, map[string]string{
		"tcp": procNetTCPHeader +
			"   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0\n" + // 127.0.0.1:8080 LISTEN
			"   1: 0100007F:1F90 0100007F:D3A2 01 00000000:00000000 00:00000000 00000000  1000        0 12346 1 0000000000000000 20 4 30 10 -1\n", // ESTABLISHED
		"tcp6": procNetTCPHeader +
			"   0: 00000000000000000000000001000000:01BB 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 22222 1 0000000000000000 100 0 0 10 0\n", // [::1]:443 LISTEN
	})

	lister, err := newProcfsListenerLister(procPath)
	if err != nil {
		t.Fatalf("expected nil constructor error, got %v (of type %T)", err, err)
	}

	listeners, err := lister.listeners()
	if err != nil {
		t.Errorf("expected nil error, got %v (of type %T)", err, err)
	}

	if len(listeners) != 2 {
		t.Fatalf("expected 2 listeners, got %d: %+v", len(listeners), listeners)
	}

	expected := []struct {
		port   uint16
		family uint16
		addr   netip.Addr
	}{
		{8080, portevent.FamilyINET, netip.MustParseAddr("127.0.0.1")},
		{443, portevent.FamilyINET6, netip.MustParseAddr("::1")},
	}

	for i, want := range expected {
		listener := listeners[i]

		if listener.Sport != want.port {
			t.Errorf("listener %d: expected port %d, got %d", i, want.port, listener.Sport)
		}

		if listener.Family != want.family {
			t.Errorf("listener %d: expected family %d, got %d", i, want.family, listener.Family)
		}

		if listener.Transition() != portevent.Opened || listener.OldState != TCPClose {
			t.Errorf("listener %d: expected CLOSE -> LISTEN, got %d -> %d", i, listener.OldState, listener.NewState)
		}

		if listener.PID != 0 {
			t.Errorf("listener %d: expected unknown (0) PID, got %d", i, listener.PID)
		}

		addr, ok := listener.EffectiveAddr()
		if !ok || addr != want.addr {
			t.Errorf("listener %d: expected address %v, got %v", i, want.addr, addr)
		}
	}
}

func TestProcfsListenerListerWithoutIPv6(t *testing.T) {
	procPath := writeProcNetFixture(t, map[string]string{
		"tcp": procNetTCPHeader +
			"   0: 00000000:0016 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 11111 1 0000000000000000 100 0 0 10 0\n", // 0.0.0.0:22 LISTEN
	})

	lister, err := newProcfsListenerLister(procPath)
	if err != nil {
		t.Fatalf("expected nil constructor error, got %v (of type %T)", err, err)
	}

	listeners, err := lister.listeners()
	if err != nil {
		t.Errorf("expected nil error, got %v (of type %T)", err, err)
	}

	if len(listeners) != 1 || listeners[0].Sport != 22 {
		t.Errorf("expected a single listener on port 22, got %+v", listeners)
	}
}

func TestProcfsListenerListerMissingTCPError(t *testing.T) {
	procPath := writeProcNetFixture(t, nil)

	lister, err := newProcfsListenerLister(procPath)
	if err != nil {
		t.Fatalf("expected nil constructor error, got %v (of type %T)", err, err)
	}

	_, err = lister.listeners()
	if err == nil {
		t.Error("expected error, got nil")
	}

	t.Logf("got error %q (of type %T)", err, err)
}

func TestProcfsListenerListerConstructorError(t *testing.T) {
	_, err := newProcfsListenerLister(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error, got nil")
	}

	t.Logf("got error %q (of type %T)", err, err)
}
