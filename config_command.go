package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"printerbus/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *ctx.configFlag
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(*ctx.configFlag)
			if err != nil {
				return err
			}
			source := path
			if !exists {
				source = path + " (not found, using defaults)"
			}
			busAddress := cfg.Bus.Address
			if busAddress == "" {
				busAddress = "(system default)"
			}
			rows := [][]string{
				{"source", source},
				{"bus.address", busAddress},
				{"bus.call_timeout", cfg.CallTimeout().String()},
				{"bus.signal_buffer", strconv.Itoa(cfg.Bus.SignalBuffer)},
				{"printer.service", cfg.Printer.Service},
				{"printer.path", cfg.Printer.Path},
				{"printer.interface", cfg.Printer.Interface},
				{"printer.metadata_cache", cfg.MetadataTTL().String()},
				{"poll.interval", cfg.PollInterval().String()},
				{"logging.level", cfg.Logging.Level},
				{"logging.format", cfg.Logging.Format},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}
}
