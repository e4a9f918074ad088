package core

import (
	"encoding/json"
	"fmt"
	"os"
)

// Ports lists the well-known local TCP ports each subsystem binds to
// (spec.md §6: "suggested assignment is per-deployment configuration, not
// a bit-exact contract").
type Ports struct {
	Hardware      int `json:"hardware"`
	BatteryManager int `json:"batteryManager"`
	Timer         int `json:"timer"`
	TaskHandler   int `json:"taskHandler"`
	StateMachine  int `json:"stateMachine"`
}

// Config is the JSON-loaded, per-deployment configuration every RoboOne
// binary reads at start of day.
type Config struct {
	Ports Ports `json:"ports"`

	// OneWireBusDevice is the tty the DS2480-family serial adapter for the
	// 1-Wire bus is attached to (e.g. "/dev/USBSerial").
	OneWireBusDevice string `json:"oneWireBusDevice"`

	// HindbrainDevice is the tty the Orangutan secondary microcontroller
	// is attached to.
	HindbrainDevice string `json:"hindbrainDevice"`

	// LogsDir is where every process writes its daily log file.
	LogsDir string `json:"logsDir"`
}

// DefaultConfig returns sane defaults for a single-board deployment, used
// when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Ports: Ports{
			Hardware:       5001,
			BatteryManager: 5002,
			Timer:          5003,
			TaskHandler:    5004,
			StateMachine:   5005,
		},
		OneWireBusDevice: "/dev/USBSerial",
		HindbrainDevice:  "/dev/Hindbrain",
		LogsDir:          "/var/log/roboone",
	}
}

// LoadConfig reads a JSON config file from path, falling back to
// DefaultConfig when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
