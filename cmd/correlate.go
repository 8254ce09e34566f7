package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saqw3r/InetMonitor/analysis"
	"github.com/saqw3r/InetMonitor/store"
	"github.com/saqw3r/InetMonitor/syslog"
)

func newCorrelateCommand() *cobra.Command {
	var window int64
	var thresholdBytes uint64

	c := &cobra.Command{
		Use:   "correlate",
		Short: "Detect peaks and attach a rule-based cause to each",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return ExitCodeError{Code: 1}
			}
			defer st.Close()

			if !cmd.Flags().Changed("window") {
				window = int64(cfg.PeakWindow.Seconds())
			}
			if !cmd.Flags().Changed("threshold") {
				thresholdBytes = cfg.PeakThresholdBytes
			}

			detector := analysis.NewPeakDetector(st)
			peaks, err := detector.Detect(window, thresholdBytes)
			if err != nil {
				return ExitCodeError{Code: 1}
			}

			correlator := analysis.NewCorrelator(syslog.NewDefaultQuerier())
			results := correlator.Correlate(context.Background(), peaks)

			for _, r := range results {
				fmt.Printf("bucket=%d app=%s -> %s (%.0f%% confidence): %s\n",
					r.Peak.MinuteBucketStart, r.Peak.AppName,
					r.Conclusion.Summary, r.Conclusion.Confidence*100, r.Conclusion.Detail)
			}
			return nil
		},
	}

	c.Flags().Int64Var(&window, "window", 3600, "Lookback window in seconds")
	c.Flags().Uint64Var(&thresholdBytes, "threshold", 1<<20, "Peak threshold in bytes")
	return c
}
