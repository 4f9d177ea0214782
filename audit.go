package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/voting"
)

func init() {
	auditCmd.Flags().String("poll", "", "Audit a single poll")
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare vote counters with the vote ledger",
	Long: `Recount each poll's votes from the ledger and compare them with the
stored counters. Exits non-zero if any counter disagrees. Counters are never
repaired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		st, conn, err := openStore(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		votes := voting.NewManager(st, nil, logger.With("component", "voting"), nil)

		var reports []models.AuditReport
		pollID, _ := cmd.Flags().GetString("poll")
		if pollID != "" {
			var report models.AuditReport
			report, err = votes.Audit(ctx, pollID)
			if err != nil && !errors.Is(err, voting.ErrCounterMismatch) {
				return err
			}
			reports = append(reports, report)
		} else {
			reports, err = votes.AuditAll(ctx)
		}

		printAudit(cmd.OutOrStdout(), reports)

		return err
	},
}

func printAudit(w io.Writer, reports []models.AuditReport) {
	var bad int
	var total int64
	for _, r := range reports {
		total += r.LedgerCount
		if r.Consistent {
			continue
		}
		bad++
		fmt.Fprintf(w, "MISMATCH %s: counter %s, options %s, ledger %s\n", r.PollID,
			humanize.Comma(r.PollCounter), humanize.Comma(r.OptionSum), humanize.Comma(r.LedgerCount))
		for _, o := range r.Options {
			if o.Counter != o.Ledger {
				fmt.Fprintf(w, "  option %s: counter %s, ledger %s\n", o.OptionID,
					humanize.Comma(o.Counter), humanize.Comma(o.Ledger))
			}
		}
	}

	fmt.Fprintf(w, "Audited %s polls (%s votes), %d inconsistent\n",
		humanize.Comma(int64(len(reports))), humanize.Comma(total), bad)
}
