package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/himplant/crmsync/cmd/crmsync/modules"
	"github.com/himplant/crmsync/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Limit int
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent webhook deliveries",
		Long: `List the most recent entries of the Postgres sync journal.

Examples:
  crmsync journal --limit 20
  crmsync journal --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if !strings.EqualFold(strings.TrimSpace(cfg.Journal.Driver), "postgres") {
				return errors.New("journal driver is not postgres; the in-memory journal lives only inside the server process")
			}
			pool, err := modules.OpenPostgres(cmd.Context(), log, cfg.Postgres, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, err := journal.NewPostgresStore(pool).Recent(cmd.Context(), opts.Limit)
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), opts.Format, entries)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", journal.DefaultRecentLimit, "number of entries to show")
	return cmd
}

func writeEntries(w io.Writer, format string, entries []journal.Entry) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []journal.Entry{}
		}
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tTYPE\tBOOKING\tOUTCOME\tMEETING\tERROR")
	for _, e := range entries {
		meeting := e.MeetingID
		if e.MeetingAction != "" {
			meeting = fmt.Sprintf("%s (%s)", e.MeetingID, e.MeetingAction)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.EventID, e.EventType, e.BookingID, e.Outcome, meeting, e.Error)
	}
	return tw.Flush()
}
