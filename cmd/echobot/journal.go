package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"echobot/internal/config"
	"echobot/internal/journal"
)

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently handled requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(config.ExpandPath(cfg.Journal.DBPath), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			entries, err := store.RecentRequests(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tBOT\tCHANNEL\tCOMMAND\tOUTCOME\tLATENCY\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Bot, e.Channel, e.Command,
					e.Outcome, e.Latency.Round(time.Millisecond), e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}
