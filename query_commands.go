package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"printerbus/bus"
	"printerbus/printer"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "metadata KEY",
		Short: "Show the metadata of a procedure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			md, err := client.MetaData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), variantMap(md))
			}
			keys := slices.Sorted(maps.Keys(md))
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{k, md[k].Kind().String(), variantText(md[k])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Type", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newActiveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List the procedures running on the printer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			if err := client.UpdateInitialActiveProcedures(cmd.Context()); err != nil {
				return err
			}
			active := client.ActiveProcedures()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), active)
			}
			if len(active) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active procedures")
				return nil
			}
			keys := slices.Sorted(maps.Keys(active))
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{k, strings.Join(active[k], " > ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Procedure", "Steps"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newErrorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "error",
		Short: "Show the printer's current error state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			return client.OnError(cmd.Context(), func(level printer.ErrorLevel, code int, message string) {
				fmt.Fprintln(cmd.OutOrStdout(), formatError(level, code, message))
			})
		},
	}
}

func formatError(level printer.ErrorLevel, code int, message string) string {
	if level == printer.NoError {
		return "no error"
	}
	return fmt.Sprintf("%s code=%d %s", level, code, message)
}

func variantMap(md map[string]bus.Variant) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v.Interface()
	}
	return out
}

func variantText(v bus.Variant) string {
	if v.IsString() {
		return v.Str()
	}
	return v.String()
}
