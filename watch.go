package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"printerbus/bus"
	"printerbus/printer"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var procedures []string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow procedure lifecycle and error signals until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.PollInterval()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, client, release, err := ctx.openPrinter()
			if err != nil {
				return err
			}
			defer release()

			w := &watcher{out: cmd.OutOrStdout(), log: ctx.logger}
			for _, key := range procedures {
				w.follow(client, key)
			}
			if err := client.OnError(runCtx, w.onError); err != nil {
				return err
			}
			if err := client.UpdateInitialActiveProcedures(runCtx); err != nil {
				return err
			}
			return w.run(runCtx, conn, interval)
		},
	}
	cmd.Flags().StringSliceVarP(&procedures, "procedure", "p", []string{"PRINT"}, "Procedure keys to follow")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Signal poll interval (default from config)")
	return cmd
}

type watcher struct {
	out io.Writer
	log logrus.FieldLogger
}

func (w *watcher) follow(client *printer.Client, key string) {
	client.OnStart(key, func(step string) {
		w.printf("%s started at %s", key, step)
	})
	client.OnNextStep(key, func(step string) {
		w.printf("%s step %s", key, step)
	})
	client.OnFinished(key, func() {
		w.printf("%s finished", key)
	})
}

func (w *watcher) onError(level printer.ErrorLevel, code int, message string) {
	w.printf("error: %s", formatError(level, code, message))
}

func (w *watcher) printf(format string, args ...any) {
	fmt.Fprintf(w.out, "%s "+format+"\n", append([]any{time.Now().Format(time.TimeOnly)}, args...)...)
}

// run pumps pending signals every interval until ctx is done.
func (w *watcher) run(ctx context.Context, conn *bus.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.WithField("interval", interval).Info("watching printer signals")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped")
			return nil
		case <-ticker.C:
			if n := conn.Pump(); n > 0 {
				w.log.WithField("dispatched", n).Debug("pumped signals")
			}
			if !conn.Connected() {
				return fmt.Errorf("bus connection lost: %w", conn.Err())
			}
		}
	}
}
