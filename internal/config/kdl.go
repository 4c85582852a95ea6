package config

import (
	"os"
	"path/filepath"
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// GlobalConfigFile is the configuration file name under the config directory.
const GlobalConfigFile = "config.kdl"

// KDLConfig represents the KDL configuration structure.
// Uses kdl struct tags for unmarshaling.
type KDLConfig struct {
	Ports    KDLPorts    `kdl:"ports"`
	Timing   KDLTiming   `kdl:"timing"`
	Bridge   KDLBridge   `kdl:"bridge"`
	LogLevel string      `kdl:"log-level"`
	History  KDLHistory  `kdl:"history"`
}

// KDLPorts holds the fixed port assignments.
type KDLPorts struct {
	Device int `kdl:"device"`
	Bridge int `kdl:"bridge"`
	Ingest int `kdl:"ingest"`
}

// KDLTiming holds interval settings, all in milliseconds.
type KDLTiming struct {
	LeaseWindowMs    int `kdl:"lease-window-ms"`
	ConnectTimeoutMs int `kdl:"connect-timeout-ms"`
	RerunDelayMs     int `kdl:"rerun-delay-ms"`
}

// KDLBridge holds bridge tool settings.
type KDLBridge struct {
	Path string `kdl:"path"`
}

// KDLHistory holds address history settings.
type KDLHistory struct {
	Path string `kdl:"path"`
}

// LoadGlobalConfig loads the configuration from the default location.
// A missing file yields the defaults.
func LoadGlobalConfig() (*Config, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		configDir = filepath.Join(home, ".config")
	}

	configPath := filepath.Join(configDir, "devlink", GlobalConfigFile)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return LoadConfigFile(configPath)
}

// LoadConfigFile loads configuration from a specific file path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseKDLConfig(string(data))
}

// ParseKDLConfig parses KDL configuration data.
func ParseKDLConfig(data string) (*Config, error) {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return nil, err
	}

	return kdlConfigToConfig(&kdlCfg), nil
}

// kdlConfigToConfig merges KDL values over the defaults.
func kdlConfigToConfig(kdlCfg *KDLConfig) *Config {
	cfg := DefaultConfig()

	if kdlCfg.Ports.Device > 0 {
		cfg.DevicePort = kdlCfg.Ports.Device
	}
	if kdlCfg.Ports.Bridge > 0 {
		cfg.BridgePort = kdlCfg.Ports.Bridge
	}
	if kdlCfg.Ports.Ingest > 0 {
		cfg.IngestPort = kdlCfg.Ports.Ingest
	}

	if kdlCfg.Timing.LeaseWindowMs > 0 {
		cfg.LeaseWindow = time.Duration(kdlCfg.Timing.LeaseWindowMs) * time.Millisecond
	}
	if kdlCfg.Timing.ConnectTimeoutMs > 0 {
		cfg.ConnectTimeout = time.Duration(kdlCfg.Timing.ConnectTimeoutMs) * time.Millisecond
	}
	if kdlCfg.Timing.RerunDelayMs > 0 {
		cfg.RerunDelay = time.Duration(kdlCfg.Timing.RerunDelayMs) * time.Millisecond
	}

	if kdlCfg.Bridge.Path != "" {
		cfg.AdbPath = kdlCfg.Bridge.Path
	}
	if kdlCfg.History.Path != "" {
		cfg.HistoryPath = kdlCfg.History.Path
	}
	if kdlCfg.LogLevel != "" {
		cfg.LogLevel = kdlCfg.LogLevel
	}

	return cfg
}
