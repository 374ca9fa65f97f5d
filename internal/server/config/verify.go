// Package config defines the server configuration structure.
package config

import (
	"errors"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.Contains(cfg.Addr, ":") {
		return errors.New("server.addr must be host:port")
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if cfg.DBFilename == "" {
		return errors.New("storage.dbfilename is required")
	}
	if strings.ContainsRune(cfg.DBFilename, '/') {
		return errors.New("storage.dbfilename must be a bare file name")
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if cfg.Enabled && cfg.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}
