// Package config holds the library-wide tunables and logger construction, so a host
// application configures logging and timing in one place.
package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bletree/central"
)

// Config holds the tunables a host application configures once at startup: how verbose
// logging is, how long scan/discovery calls are given before a caller should give up
// waiting, and the central package's internal timings.
type Config struct {
	LogLevel               logrus.Level  `json:"log_level"`
	ScanTimeout            time.Duration `json:"scan_timeout"`
	AgingInterval          time.Duration `json:"aging_interval"`
	StaleAfter             time.Duration `json:"stale_after"`
	ScanStartRetryInterval time.Duration `json:"scan_start_retry_interval"`
	ScanStartRetryBudget   time.Duration `json:"scan_start_retry_budget"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	d := central.DefaultConfig()
	return &Config{
		LogLevel:               logrus.InfoLevel,
		ScanTimeout:            10 * time.Second,
		AgingInterval:          d.AgingInterval,
		StaleAfter:             d.StaleAfter,
		ScanStartRetryInterval: d.ScanStartRetryInterval,
		ScanStartRetryBudget:   d.ScanStartRetryBudget,
	}
}

// NewLogger creates a logger configured at this Config's level, structured-text
// formatted with full timestamps.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// CentralConfig projects the central-relevant tunables into a *central.Config, for
// passing to central.WithConfig when constructing an AdapterCore.
func (c *Config) CentralConfig() *central.Config {
	return &central.Config{
		AgingInterval:          c.AgingInterval,
		StaleAfter:             c.StaleAfter,
		ScanStartRetryInterval: c.ScanStartRetryInterval,
		ScanStartRetryBudget:   c.ScanStartRetryBudget,
		DefaultMaxPDUSize:      central.DefaultConfig().DefaultMaxPDUSize,
	}
}
