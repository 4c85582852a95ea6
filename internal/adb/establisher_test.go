package adb

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devlink-io/devlink/internal/portlease"
	"github.com/devlink-io/devlink/internal/registry"
)

// stubRegistry is a Registry whose ConnectTo blocks until released.
type stubRegistry struct {
	registry.Events
	connectErr error
	release    chan struct{} // nil means return immediately
	connects   atomic.Int32
	lastPort   atomic.Int32
	lastTag    atomic.Value
}

func (s *stubRegistry) ConnectTo(ctx context.Context, host string, port int, tag registry.SessionType, deviceID string) error {
	s.connects.Add(1)
	s.lastPort.Store(int32(port))
	s.lastTag.Store(tag)
	if s.release != nil {
		<-s.release
	}
	return s.connectErr
}

func (s *stubRegistry) SendCommand(name string, payload map[string]string) error { return nil }
func (s *stubRegistry) Disconnect() error                                        { return nil }

// bridgeScript fakes the adb binary: forwards succeed, the diagnostic query
// answers with the given output and counts its invocations.
func bridgeScript(diagnosticOut string, diagnostics *atomic.Int32) *Bridge {
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		switch {
		case strings.Contains(joined, "forward"):
			return "", nil
		case strings.Contains(joined, "content query"):
			diagnostics.Add(1)
			return diagnosticOut, nil
		}
		return "", nil
	}
	return b
}

func newTestEstablisher(t *testing.T, b *Bridge, reg registry.Registry, warn func(string)) *Establisher {
	t.Helper()
	return NewEstablisher(EstablisherConfig{
		Bridge:           b,
		Ports:            portlease.New(time.Minute),
		Registry:         reg,
		DevicePort:       9317,
		BridgePort:       20347,
		HandshakeTimeout: 50 * time.Millisecond,
		Warn:             warn,
	})
}

func TestConnectSuccessSkipsDiagnostic(t *testing.T) {
	var diagnostics atomic.Int32
	var warnings atomic.Int32

	reg := &stubRegistry{}
	e := newTestEstablisher(t, bridgeScript("", &diagnostics), reg,
		func(string) { warnings.Add(1) })

	dev := &DeviceDescriptor{ID: "abc123", Name: "Pixel (abc123)"}
	if err := e.Connect(context.Background(), dev); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	// Give a stray timer a moment to misfire if cancellation were broken.
	time.Sleep(120 * time.Millisecond)

	if n := diagnostics.Load(); n != 0 {
		t.Errorf("diagnostic ran %d times after a successful connect", n)
	}
	if n := warnings.Load(); n != 0 {
		t.Errorf("%d warnings after a successful connect", n)
	}
	if got := reg.lastTag.Load().(registry.SessionType); got != registry.SessionServerOverADB {
		t.Errorf("session tag = %q, want server-over-adb", got)
	}
}

func TestConnectTimeoutReadyStateSuppressesWarning(t *testing.T) {
	var diagnostics atomic.Int32
	var warnings atomic.Int32

	reg := &stubRegistry{release: make(chan struct{})}
	defer close(reg.release)

	e := newTestEstablisher(t,
		bridgeScript("Row: 0 state=2, port=9317\n", &diagnostics), reg,
		func(string) { warnings.Add(1) })

	err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	if n := diagnostics.Load(); n != 1 {
		t.Errorf("diagnostic ran %d times, want exactly 1", n)
	}
	if n := warnings.Load(); n != 0 {
		t.Errorf("state=2 produced %d warnings, want 0", n)
	}
}

func TestConnectTimeoutBadStateWarns(t *testing.T) {
	var diagnostics atomic.Int32
	var warnings atomic.Int32

	reg := &stubRegistry{release: make(chan struct{})}
	defer close(reg.release)

	e := newTestEstablisher(t,
		bridgeScript("Row: 0 state=1, port=9317\n", &diagnostics), reg,
		func(string) { warnings.Add(1) })

	err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	if n := warnings.Load(); n != 1 {
		t.Errorf("state=1 produced %d warnings, want 1", n)
	}
}

func TestConnectTimeoutProviderMissingWarns(t *testing.T) {
	var diagnostics atomic.Int32
	var warnings atomic.Int32

	reg := &stubRegistry{release: make(chan struct{})}
	defer close(reg.release)

	e := newTestEstablisher(t,
		bridgeScript("Error: Could not find provider: io.devlink.agent.provider\n", &diagnostics), reg,
		func(string) { warnings.Add(1) })

	err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	if n := warnings.Load(); n != 1 {
		t.Errorf("missing provider produced %d warnings, want 1", n)
	}
}

func TestConnectTimeoutLeavesAttemptRunning(t *testing.T) {
	var diagnostics atomic.Int32

	reg := &stubRegistry{release: make(chan struct{})}
	e := newTestEstablisher(t, bridgeScript("state=2", &diagnostics), reg, nil)

	err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	// The in-flight attempt must still be blocked, not cancelled.
	if n := reg.connects.Load(); n != 1 {
		t.Fatalf("connects = %d, want 1", n)
	}
	close(reg.release)
}

func TestConnectForwardFailureAborts(t *testing.T) {
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		if strings.Contains(strings.Join(args, " "), "forward") {
			return "cannot bind listener", errors.New("exit status 1")
		}
		return "", nil
	}

	reg := &stubRegistry{}
	e := newTestEstablisher(t, b, reg, nil)

	err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"})
	if !errors.Is(err, ErrForwardFailed) {
		t.Fatalf("Connect() error = %v, want ErrForwardFailed", err)
	}
	if n := reg.connects.Load(); n != 0 {
		t.Errorf("connect attempted after forward failure")
	}
}

func TestConnectLeasesDistinctPorts(t *testing.T) {
	seen := make(map[string]bool)
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "forward") {
			if seen[joined] {
				return "", errors.New("duplicate forward")
			}
			seen[joined] = true
		}
		return "", nil
	}

	reg := &stubRegistry{}
	e := newTestEstablisher(t, b, reg, nil)

	if err := e.Connect(context.Background(), &DeviceDescriptor{ID: "abc123"}); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("saw %d forward invocations, want 2 distinct", len(seen))
	}
}
