package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start KEY [NAME=VALUE...]",
		Short: "Start a procedure, optionally with string parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			_, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			ok, err := client.StartProcedure(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return reportAccepted(cmd, "start", args[0], ok)
		},
	}
}

func newMessageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "message KEY MESSAGE",
		Short: "Send a message to a running procedure (e.g. PRINT ABORT)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			ok, err := client.MessageProcedure(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return reportAccepted(cmd, args[1], args[0], ok)
		},
	}
}

func reportAccepted(cmd *cobra.Command, action, key string, ok bool) error {
	if !ok {
		return fmt.Errorf("printer refused %s for %s", action, key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s accepted for %s\n", action, key)
	return nil
}

func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected NAME=VALUE)", arg)
		}
		params[strings.TrimSpace(name)] = value
	}
	return params, nil
}
