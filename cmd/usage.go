package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/saqw3r/InetMonitor/store"
)

func newUsageCommand() *cobra.Command {
	var lastSeconds int64

	c := &cobra.Command{
		Use:   "usage",
		Short: "Print per-app byte totals over a recent window",
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

			rows, err := st.UsageIn(lastSeconds)
			if err != nil {
				return ExitCodeError{Code: 1}
			}
			for _, r := range rows {
				fmt.Printf("%-40s  up %-10s  down %-10s\n",
					r.AppName, humanize.Bytes(r.BytesUp), humanize.Bytes(r.BytesDown))
			}
			return nil
		},
	}

	c.Flags().Int64Var(&lastSeconds, "window", 3600, "Lookback window in seconds")
	return c
}
