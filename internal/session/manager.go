// Package session owns the process-wide connection state: the port-lease
// cache, the address history and the set of attached device sessions.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/devlink-io/devlink/internal/history"
	"github.com/devlink-io/devlink/internal/logger"
	"github.com/devlink-io/devlink/internal/portlease"
	"github.com/devlink-io/devlink/internal/registry"
)

// ErrNoDeviceConnected is returned by actions that need at least one session.
var ErrNoDeviceConnected = errors.New("no device connected")

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	HistoryPath string
	DevicePort  int
	LeaseWindow time.Duration
	Registry    registry.Registry
}

// Manager holds the shared state every connection component needs. It is
// passed by reference, never global.
type Manager struct {
	ports   *portlease.Cache
	history *history.Store
	reg     registry.Registry

	mu      sync.Mutex
	devices map[string]registry.Device
}

// NewManager builds the manager and subscribes to the registry's lifecycle
// events. Call Init before use and Teardown on shutdown.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		ports:   portlease.New(cfg.LeaseWindow),
		history: history.NewStore(cfg.HistoryPath, cfg.DevicePort),
		reg:     cfg.Registry,
		devices: make(map[string]registry.Device),
	}

	cfg.Registry.OnNewDevice(m.onNewDevice)
	cfg.Registry.OnDetachDevice(m.onDetachDevice)
	cfg.Registry.OnLog(func(deviceID, line string) {
		logger.Component("device").Info().Str("device", deviceID).Msg(line)
	})

	return m
}

// Init starts the owned timers.
func (m *Manager) Init() {
	m.ports.Start()
}

// Teardown stops timers and closes every session.
func (m *Manager) Teardown() {
	m.ports.Stop()
	if err := m.reg.Disconnect(); err != nil {
		logger.Component("session").Error().Err(err).Msg("disconnect on teardown")
	}
}

// Ports exposes the shared port-lease cache.
func (m *Manager) Ports() *portlease.Cache { return m.ports }

// History exposes the shared address history.
func (m *Manager) History() *history.Store { return m.history }

// Devices lists the attached sessions.
func (m *Manager) Devices() []registry.Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]registry.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

// RequireDevice fails with ErrNoDeviceConnected when no session is attached.
func (m *Manager) RequireDevice() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.devices) == 0 {
		return ErrNoDeviceConnected
	}
	return nil
}

// onNewDevice records the session and relocates the device address to the
// front of the history.
func (m *Manager) onNewDevice(d registry.Device) {
	m.mu.Lock()
	m.devices[d.ID] = d
	m.mu.Unlock()

	if d.IP != "" && d.IP != "127.0.0.1" {
		if err := m.history.Touch(d.IP); err != nil {
			logger.Component("session").Error().Err(err).Str("ip", d.IP).Msg("history update failed")
		}
	}

	logger.Component("session").Info().
		Str("device", d.ID).
		Str("session", string(d.Session)).
		Msg("session attached")
}

func (m *Manager) onDetachDevice(d registry.Device) {
	m.mu.Lock()
	delete(m.devices, d.ID)
	m.mu.Unlock()

	logger.Component("session").Info().Str("device", d.ID).Msg("session detached")
}
