package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/leaderboard"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// monitorTop is how many polls and options each report lists.
const monitorTop = 5

func init() {
	monitorCmd.Flags().Duration("interval", 5*time.Second, "Time between reports")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print poll and vote statistics periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			return fmt.Errorf("invalid interval %s", interval)
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, conn, err := openStore(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		board := leaderboard.New(st, nil, leaderboard.Config{
			TTL:    interval,
			Logger: logger.With("component", "leaderboard"),
		})

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := report(ctx, cmd.OutOrStdout(), st, board); err != nil {
				logger.Error("Monitoring error", "error", err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

// report writes one round of statistics.
func report(ctx context.Context, w io.Writer, st *store.Store, board *leaderboard.Aggregator) error {
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	polls, err := st.ListPolls(ctx)
	if err != nil {
		return err
	}
	top, err := board.GetTopOptions(ctx, monitorTop)
	if err != nil {
		return err
	}

	now := st.Now()
	fmt.Fprintf(w, "\n=== %s ===\n", now.Format(time.DateTime))
	fmt.Fprintf(w, "Polls:  %s (%s active)\n", humanize.Comma(int64(stats.Polls)), humanize.Comma(int64(stats.ActivePolls)))
	fmt.Fprintf(w, "Votes:  %s from %s voters\n", humanize.Comma(stats.Votes), humanize.Comma(stats.Voters))

	fmt.Fprintf(w, "\nTop %d active polls:\n", monitorTop)
	for i, p := range topActivePolls(polls, now, monitorTop) {
		fmt.Fprintf(w, "  %d. %s  %s votes, expires %s\n", i+1, p.Question,
			humanize.Comma(p.TotalVotes), humanize.RelTime(p.ExpiresAt, now, "ago", "from now"))
	}

	fmt.Fprintf(w, "\nTop %d options:\n", monitorTop)
	for _, e := range top {
		fmt.Fprintf(w, "  #%d %s / %s  %s votes (%.2f%%)\n", e.Rank, e.PollQuestion, e.OptionText,
			humanize.Comma(e.VoteCount), e.Percentage)
	}

	return nil
}

// topActivePolls returns up to n unexpired polls with the most votes.
func topActivePolls(polls []models.Poll, now time.Time, n int) []models.Poll {
	var active []models.Poll
	for _, p := range polls {
		if !p.Expired(now) {
			active = append(active, p)
		}
	}
	slices.SortStableFunc(active, func(a, b models.Poll) int {
		return cmp.Compare(b.TotalVotes, a.TotalVotes)
	})

	return active[:min(n, len(active))]
}
