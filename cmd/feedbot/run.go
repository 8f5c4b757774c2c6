package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"feedbot/internal/app"
	logx "feedbot/pkg/logx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the publication scheduler until interrupted",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "upper bound for a graceful stop")
}

func runBot(cmd *cobra.Command, args []string) error {
	shutdown, _ := cmd.Flags().GetDuration("shutdown-timeout")

	a, err := openApp()
	if err != nil {
		return err
	}
	log := a.Logger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdown)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}
	notifySystemd(log, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	notifySystemd(log, daemon.SdNotifyStopping)

	fatal := a.Err()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdown)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		log.Warn("stop failed", logx.Err(err))
	}
	return fatal
}

// notifySystemd is a no-op outside a Type=notify unit.
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
