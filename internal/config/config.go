// Package config provides KDL configuration loading for the devlink controller.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Well-known ports and timings for the device link.
const (
	// DefaultDevicePort is the port the device-side script client listens on.
	// LAN sessions dial it directly; ADB sessions forward a leased local port to it.
	DefaultDevicePort = 9317

	// DefaultBridgePort is the device-side debug bridge server port, the target
	// of the second ADB forward.
	DefaultBridgePort = 20347

	// DefaultIngestPort is the local HTTP port for inbound /exec commands.
	DefaultIngestPort = 10347
)

// Config holds the complete controller configuration.
type Config struct {
	// DevicePort is the fixed device-side client port.
	DevicePort int
	// BridgePort is the fixed device-side debug bridge port.
	BridgePort int
	// IngestPort is the local command ingest HTTP port.
	IngestPort int

	// LeaseWindow is the port lease rotation interval.
	LeaseWindow time.Duration
	// ConnectTimeout guards the ADB handshake before the diagnostic query runs.
	ConnectTimeout time.Duration
	// RerunDelay is the pause between stop-all and run for project reruns.
	RerunDelay time.Duration

	// AdbPath is the bridge tool executable (name or absolute path).
	AdbPath string
	// HistoryPath is the address history state file.
	HistoryPath string

	// LogLevel controls logging verbosity: debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DevicePort:     DefaultDevicePort,
		BridgePort:     DefaultBridgePort,
		IngestPort:     DefaultIngestPort,
		LeaseWindow:    15 * time.Second,
		ConnectTimeout: 5 * time.Second,
		RerunDelay:     1 * time.Second,
		AdbPath:        "adb",
		HistoryPath:    DefaultHistoryPath(),
		LogLevel:       "info",
	}
}

// DefaultHistoryPath returns the default address history file path.
func DefaultHistoryPath() string {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "devlink", "history.json")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "devlink", "history.json")
	}

	return filepath.Join(os.TempDir(), "devlink-history.json")
}
