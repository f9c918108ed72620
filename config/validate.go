package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const envBusAddress = "DBUS_SYSTEM_BUS_ADDRESS"

func (c *Config) applyEnv() {
	if strings.TrimSpace(c.Bus.Address) == "" {
		c.Bus.Address = strings.TrimSpace(os.Getenv(envBusAddress))
	}
}

func (c *Config) normalize() {
	c.Bus.Address = strings.TrimSpace(c.Bus.Address)
	c.Printer.Service = strings.TrimSpace(c.Printer.Service)
	c.Printer.Path = strings.TrimSpace(c.Printer.Path)
	c.Printer.Interface = strings.TrimSpace(c.Printer.Interface)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Bus.SignalBuffer == 0 {
		c.Bus.SignalBuffer = defaultSignalBuffer
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validatePrinter(); err != nil {
		return err
	}
	if c.Poll.IntervalMS <= 0 {
		return errors.New("poll.interval_ms must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateBus() error {
	if c.Bus.Address != "" && !strings.Contains(c.Bus.Address, ":") {
		return fmt.Errorf("bus.address %q is not a bus address (expected transport:key=value)", c.Bus.Address)
	}
	if c.Bus.CallTimeoutMS < 0 {
		return errors.New("bus.call_timeout_ms must not be negative")
	}
	if c.Bus.SignalBuffer < 0 {
		return errors.New("bus.signal_buffer must not be negative")
	}
	return nil
}

func (c *Config) validatePrinter() error {
	if c.Printer.Service == "" {
		return errors.New("printer.service must be set")
	}
	if !strings.HasPrefix(c.Printer.Path, "/") {
		return fmt.Errorf("printer.path %q must be an absolute object path", c.Printer.Path)
	}
	if c.Printer.Interface == "" {
		return errors.New("printer.interface must be set")
	}
	if c.Printer.MetadataCacheMS < 0 {
		return errors.New("printer.metadata_cache_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
