package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/saqw3r/InetMonitor/analysis"
	"github.com/saqw3r/InetMonitor/store"
)

func newPeaksCommand() *cobra.Command {
	var window int64
	var thresholdBytes uint64

	c := &cobra.Command{
		Use:   "peaks",
		Short: "Print minute-buckets whose per-app total met the detection threshold",
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
			for _, p := range peaks {
				fmt.Printf("bucket=%d app=%s total=%s score=%.2f\n",
					p.MinuteBucketStart, p.AppName, humanize.Bytes(p.TotalBytes), p.Score)
			}
			return nil
		},
	}

	c.Flags().Int64Var(&window, "window", 3600, "Lookback window in seconds")
	c.Flags().Uint64Var(&thresholdBytes, "threshold", 1<<20, "Peak threshold in bytes")
	return c
}
