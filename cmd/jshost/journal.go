package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cryguy/jshost/internal/journal"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recorded channel traffic",
	Long: `List the newest messages recorded with --journal, oldest first.

Directions: tx (script to host), rx (host to script), oneshot.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runJournal,
}

func init() {
	journalCmd.Flags().IntP("limit", "n", 20, "Number of entries to show (0 = all)")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("journal")
	limit, _ := cmd.Flags().GetInt("limit")
	if path == "" {
		return errors.New("--journal is required")
	}

	j, err := journal.Open(path, hclog.NewNullLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(context.Background(), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDIR\tCHANNEL\tPAYLOAD")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Time.Format(time.RFC3339Nano), e.Direction, e.Channel, e.Payload)
	}
	return w.Flush()
}
