package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saqw3r/InetMonitor/monitor"
	"github.com/saqw3r/InetMonitor/procname"
	"github.com/saqw3r/InetMonitor/syslog"
	"github.com/saqw3r/InetMonitor/trace/etw"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor as a long-lived process",
		RunE: func(c *cobra.Command, args []string) error {
			return runMonitor()
		},
	}
}

func runMonitor() error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cap := etw.Detect()
	if !cap.Available {
		logger.Warnw("trace subsystem unavailable", "reason", cap.Reason)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := monitor.New(cfg, etw.NewBackend(), procname.NewOSQuerier(), syslog.NewDefaultQuerier(), logger)
	if err != nil {
		logger.Errorw("failed to initialize monitor", "error", err)
		return ExitCodeError{Code: 1}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infow("starting monitor", "session", cfg.SessionName, "store", cfg.StorePath)
	if err := m.Run(ctx); err != nil {
		logger.Errorw("monitor exited with error", "error", err)
		return ExitCodeError{Code: 1}
	}
	return nil
}
