package adb

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/devlink-io/devlink/internal/logger"
	"github.com/devlink-io/devlink/internal/portlease"
	"github.com/devlink-io/devlink/internal/registry"
)

// readyState is the debug server state that needs no user action.
const readyState = "2"

var statePattern = regexp.MustCompile(`state=(\d+)`)

// serverModeWarning is emitted when the diagnostic suggests the device agent
// is not running in server mode.
const serverModeWarning = "Connection is taking too long. Make sure server mode is enabled in the device agent."

// EstablisherConfig wires an Establisher.
type EstablisherConfig struct {
	Bridge   *Bridge
	Ports    *portlease.Cache
	Registry registry.Registry

	// DevicePort and BridgePort are the fixed device-side forward targets.
	DevicePort int
	BridgePort int

	// HandshakeTimeout guards the logical connect before the diagnostic
	// query runs.
	HandshakeTimeout time.Duration

	// Warn surfaces user-facing guidance (server-mode hints). Optional.
	Warn func(msg string)
}

// Establisher opens sessions to devices through forwarded ADB ports.
type Establisher struct {
	bridge     *Bridge
	ports      *portlease.Cache
	reg        registry.Registry
	devicePort int
	bridgePort int
	timeout    time.Duration
	warn       func(string)
}

// NewEstablisher creates an establisher from config.
func NewEstablisher(cfg EstablisherConfig) *Establisher {
	warn := cfg.Warn
	if warn == nil {
		warn = func(string) {}
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Establisher{
		bridge:     cfg.Bridge,
		ports:      cfg.Ports,
		reg:        cfg.Registry,
		devicePort: cfg.DevicePort,
		bridgePort: cfg.BridgePort,
		timeout:    timeout,
		warn:       warn,
	}
}

// Enumerate lists bridge-visible devices keyed by display name.
func (e *Establisher) Enumerate(ctx context.Context) (map[string]*DeviceDescriptor, error) {
	return e.bridge.Devices(ctx)
}

// Connect forwards two leased local ports to the device's client and bridge
// server ports, then races the handshake against the diagnostic timer.
//
// The two leases are sequential on purpose: the first must land in the cache
// window before the second probe runs, or both could be handed the same
// wildcard port.
func (e *Establisher) Connect(ctx context.Context, dev *DeviceDescriptor) error {
	log := logger.Component("adb")

	clientPort, err := e.ports.Lease(ctx)
	if err != nil {
		return err
	}
	bridgePort, err := e.ports.Lease(ctx)
	if err != nil {
		return err
	}

	if err := e.bridge.Forward(ctx, dev.ID, clientPort, e.devicePort); err != nil {
		return err
	}
	if err := e.bridge.Forward(ctx, dev.ID, bridgePort, e.bridgePort); err != nil {
		return err
	}

	log.Info().
		Str("device", dev.ID).
		Int("client_forward", clientPort).
		Int("bridge_forward", bridgePort).
		Msg("forwards established")

	// The connect must outlive both ctx and the timer: a timeout only adds
	// a diagnostic, it never kills the in-flight attempt.
	connectCtx := context.WithoutCancel(ctx)
	result := make(chan error, 1)
	go func() {
		result <- e.reg.ConnectTo(connectCtx, "127.0.0.1", clientPort,
			registry.SessionServerOverADB, dev.ID)
	}()

	timer := time.NewTimer(e.timeout)
	select {
	case err := <-result:
		timer.Stop()
		return err
	case <-timer.C:
		e.diagnose(ctx, dev.ID)
		return ErrConnectTimeout
	}
}

// diagnose queries the on-device debug server after a handshake timeout and
// translates its answer into user guidance. A ready answer stays silent; the
// late-arriving connect result is allowed to complete on its own.
func (e *Establisher) diagnose(ctx context.Context, deviceID string) {
	out := e.bridge.QueryDebugServer(ctx, deviceID)

	if strings.Contains(strings.ToLower(out), "could not find provider") {
		e.warn(serverModeWarning)
		return
	}

	m := statePattern.FindStringSubmatch(out)
	if m == nil || m[1] != readyState {
		e.warn(serverModeWarning)
		return
	}

	logger.Component("adb").Debug().
		Str("device", deviceID).
		Msg("debug server reports ready state, awaiting late handshake")
}
