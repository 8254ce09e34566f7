package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saqw3r/InetMonitor/monitor"
	"github.com/saqw3r/InetMonitor/procname"
	"github.com/saqw3r/InetMonitor/syslog"
	"github.com/saqw3r/InetMonitor/trace/etw"
)

// newDoctorCommand reports the diagnostic surface the original
// ETWController/GeoIpResolver last-error fields expose natively: trace
// subsystem availability, store openability, config resolution, and the
// debug_mu surface (last-events ring, event counts, last parse error) via
// Monitor.Diagnostics. It mirrors the teacher's own -doctor mode in spirit
// (a single command that checks "can this process actually do its job on
// this host") without carrying over any of its system-health checks, which
// belong to a different domain.
func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check whether this host can run the monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := true

			cap := etw.Detect()
			if cap.Available {
				fmt.Println("[ok]   trace subsystem: available")
			} else {
				ok = false
				fmt.Printf("[fail] trace subsystem: %s\n", cap.Reason)
			}

			cfg, err := loadConfig()
			if err != nil {
				ok = false
				fmt.Printf("[fail] config: %v\n", err)
				return ExitCodeError{Code: 1}
			}
			fmt.Printf("[ok]   config: store=%s session=%q\n", cfg.StorePath, cfg.SessionName)

			m, err := monitor.New(cfg, etw.NewBackend(), procname.NewOSQuerier(), syslog.NewDefaultQuerier(), nil)
			if err != nil {
				ok = false
				fmt.Printf("[fail] store: %v\n", err)
			} else {
				fmt.Println("[ok]   store: opened and schema ready")

				traceDiag, lastParseErr, debug := m.Diagnostics()
				fmt.Printf("[ok]   diagnostics: start=%d enable=%d open=%d process=%d events=%d parsed=%d dns=%d\n",
					traceDiag.LastStartTraceError, traceDiag.LastEnableError,
					traceDiag.LastOpenTraceError, traceDiag.LastProcessTraceError,
					debug.TotalEvents, debug.ParsedEvents, debug.DNSEvents)
				if lastParseErr != "" {
					fmt.Printf("[warn] last parse error: %s\n", lastParseErr)
				}

				if err := m.Stop(); err != nil {
					ok = false
					fmt.Printf("[fail] store close: %v\n", err)
				}
			}

			if !ok {
				return ExitCodeError{Code: 1}
			}
			return nil
		},
	}
}
