package config

import (
	"fmt"
	"time"

	"github.com/zde37/chordring/pkg/hash"
)

// Config holds all configuration for a Chord node
type Config struct {
	// Node identification
	Host string
	Port int

	// HTTP status API, 0 disables it
	HTTPPort int

	// Join is the "host:port" of an existing ring member; empty starts a new ring
	Join string

	// Chord parameters
	M                   int           // Identifier space size in bits
	MaintenanceInterval time.Duration // Pause between check_predecessor/stabilize/fix_fingers rounds
	RPCTimeout          time.Duration // Timeout for RPC calls
	MaxLookupHops       int           // Forwarding bound for find_successor, 0 means 2*M

	// Logging
	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json, console
	LogFile   string // rotated log file, empty disables file output
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                "127.0.0.1",
		Port:                8440,
		HTTPPort:            8080,
		M:                   hash.MaxBits, // 2^160 address space
		MaintenanceInterval: 1 * time.Second,
		RPCTimeout:          5 * time.Second,
		MaxLookupHops:       0,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.M <= 0 || c.M > hash.MaxBits {
		return fmt.Errorf("M must be between 1 and %d, got %d", hash.MaxBits, c.M)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.Port {
		return fmt.Errorf("HTTP port must differ from the RPC port %d", c.Port)
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %s", c.MaintenanceInterval)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive, got %s", c.RPCTimeout)
	}
	if c.MaxLookupHops < 0 {
		return fmt.Errorf("max lookup hops cannot be negative, got %d", c.MaxLookupHops)
	}
	return nil
}

// Address returns the node's own endpoint in "host:port" form.
func (c *Config) Address() string {
	return hash.JoinHostPort(c.Host, c.Port)
}

// LookupHopLimit returns the effective forwarding bound for successor lookups.
func (c *Config) LookupHopLimit() int {
	if c.MaxLookupHops > 0 {
		return c.MaxLookupHops
	}
	return 2 * c.M
}
