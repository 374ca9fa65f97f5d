// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for rediskv-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the RESP endpoint.
type ServerSection struct {
	// Addr is the TCP listen address.
	Addr string `koanf:"addr"`

	// ReadTimeout bounds reading one command after its first byte.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// IdleTimeout bounds the quiet time between commands.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// RateLimit is the per-IP command budget per second. Zero disables it.
	RateLimit int `koanf:"rate_limit"`
}

// StorageSection locates the snapshot file loaded at startup.
// Dir and DBFilename are immutable after startup and surfaced through
// CONFIG GET.
type StorageSection struct {
	Dir        string `koanf:"dir"`
	DBFilename string `koanf:"dbfilename"`

	// SweepInterval is the period of the background expiry sweep.
	// Zero disables the sweeper; lazy expiry alone keeps reads correct.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MetricsSection configures the optional Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging behavior.
type LogSection struct {
	// Level is the log level (debug, info, warn, error).
	Level string `koanf:"level"`

	// Format is the log output format (json, text).
	Format string `koanf:"format"`
}
