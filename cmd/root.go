// Package cmd implements InetMonitor's command-line surface over
// github.com/spf13/cobra, replacing the teacher's hand-rolled flag
// dispatch (the original root.go built one flat flag.FlagSet covering
// every mode) with cobra's subcommand tree — a better fit once the binary
// grew past "one mode, many flags" into "several independent operator
// actions" (run, usage, peaks, correlate, doctor).
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saqw3r/InetMonitor/config"
)

// ExitCodeError signals a non-zero exit code without calling os.Exit
// directly, so main can decide how to report it.
type ExitCodeError struct{ Code int }

func (e ExitCodeError) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// Run builds the root command and executes it.
func Run() error {
	root := newRootCommand()
	return root.Execute()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "inetmonitor",
		Short: "Per-process network traffic monitor",
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newUsageCommand())
	root.AddCommand(newPeaksCommand())
	root.AddCommand(newCorrelateCommand())
	root.AddCommand(newDoctorCommand())

	return root
}

// newLogger builds the shared structured logger every subcommand uses,
// mirroring the teacher's single shared zap logger construction.
func newLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("cmd: build logger: %w", err)
	}
	return l.Sugar(), nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("cmd: load config: %w", err)
	}
	return cfg, nil
}
