package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"printerbus/bus"
	"printerbus/config"
	"printerbus/logging"
	"printerbus/printer"
)

type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *logrus.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		NoColor: cfg.Logging.NoColor,
	})
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.logger = logger
	return cfg, nil
}

// openPrinter connects to the bus and subscribes the printer client. The
// returned release func closes both.
func (c *commandContext) openPrinter() (*bus.Conn, *printer.Client, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	conn, err := bus.Open(bus.Options{
		Address:      cfg.Bus.Address,
		CallTimeout:  cfg.CallTimeout(),
		SignalBuffer: cfg.Bus.SignalBuffer,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect system bus: %w", err)
	}
	client, err := printer.New(conn, printer.Options{
		Service:     cfg.Printer.Service,
		Path:        cfg.Printer.Path,
		Interface:   cfg.Printer.Interface,
		MetadataTTL: cfg.MetadataTTL(),
		Logger:      c.logger,
	})
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	release := func() {
		client.Close()
		conn.Close()
	}
	return conn, client, release, nil
}
