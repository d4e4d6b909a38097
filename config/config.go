package config

import (
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
)

// Structs

// Config holds all information parsed from
// supplied config file.
type Config struct {
	LogLevel string
	Replica  Replica
	Network  Network
	Metrics  Metrics
}

// Replica configures the local replica identity.
// An ID of -1 lets the process derive one at random
// on startup.
type Replica struct {
	ID int
}

// Network configures the broadcast transport and the
// reconciliation cadence.
type Network struct {
	Port            uint16
	BroadcastAddr   string
	AntiEntropySecs uint
}

// Metrics configures the observability endpoint. An
// empty address disables the endpoint and all counters
// are discarded.
type Metrics struct {
	PrometheusAddr string
}

// Functions

// LoadConfig takes in the path to the main config
// file in TOML syntax and places the values from the
// file in the corresponding struct.
func LoadConfig(configFile string) (*Config, error) {

	// Defaults for everything the file may omit.
	conf := &Config{
		LogLevel: "info",
		Replica:  Replica{ID: -1},
		Network: Network{
			Port:            9689,
			BroadcastAddr:   "255.255.255.255",
			AntiEntropySecs: 10,
		},
	}

	// Parse values from TOML file into struct.
	_, err := toml.DecodeFile(configFile, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read in TOML config file at '%s' with: %v", configFile, err)
	}

	if conf.Replica.ID < -1 || conf.Replica.ID > 255 {
		return nil, fmt.Errorf("replica ID %d out of range, expected -1 or 0..255", conf.Replica.ID)
	}

	if conf.Network.Port == 0 {
		return nil, fmt.Errorf("network port must not be zero")
	}

	if net.ParseIP(conf.Network.BroadcastAddr) == nil {
		return nil, fmt.Errorf("broadcast address '%s' is not a valid IP address", conf.Network.BroadcastAddr)
	}

	if conf.Network.AntiEntropySecs == 0 {
		return nil, fmt.Errorf("anti-entropy period must not be zero")
	}

	switch conf.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("unknown log level '%s', expected debug, info, warn or error", conf.LogLevel)
	}

	return conf, nil
}
