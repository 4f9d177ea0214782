package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/voting"
)

// seedVoterPool is the number of distinct user ids seeded votes draw from.
const seedVoterPool = 1000

var seedTopics = []string{"color", "food", "movie", "book", "place"}

type seedOptions struct {
	Polls   int
	Options int
	Votes   int
}

func (o seedOptions) validate() error {
	if o.Polls < 1 {
		return errors.New("--polls must be at least 1")
	}
	if o.Options < 2 || o.Options > store.MaxOptions {
		return fmt.Errorf("--options must be between 2 and %d", store.MaxOptions)
	}
	if o.Votes < 0 || o.Votes > seedVoterPool {
		return fmt.Errorf("--votes must be between 0 and %d", seedVoterPool)
	}
	return nil
}

func init() {
	seedCmd.Flags().Int("polls", 50, "Number of polls to create")
	seedCmd.Flags().Int("options", 4, "Options per poll")
	seedCmd.Flags().Int("votes", 100, "Votes per poll")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create polls and random votes for testing",
	Long: `Create polls that expire one to eight days from now and cast random
votes on them from distinct users. Votes go through the normal vote path but
are not published, so a running server picks them up on its next leaderboard
refresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts seedOptions
		opts.Polls, _ = cmd.Flags().GetInt("polls")
		opts.Options, _ = cmd.Flags().GetInt("options")
		opts.Votes, _ = cmd.Flags().GetInt("votes")
		if err := opts.validate(); err != nil {
			return err
		}

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
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

		return seed(ctx, cmd.OutOrStdout(), st, votes, opts, rng)
	},
}

// seed creates opts.Polls polls and casts opts.Votes votes on each.
func seed(ctx context.Context, w io.Writer, st *store.Store, votes *voting.Manager, opts seedOptions, rng *rand.Rand) error {
	start := time.Now()
	var cast int64

	for i := range opts.Polls {
		question := fmt.Sprintf("Test Poll %d: What is your favorite %s?", i+1, seedTopics[i%len(seedTopics)])
		options := make([]string, opts.Options)
		for j := range options {
			options[j] = fmt.Sprintf("Option %d", j+1)
		}
		// 1 to 8 days out
		expiry := st.Now().Add(24*time.Hour + time.Duration(rng.Int64N(int64(7*24*time.Hour))))

		poll, err := st.CreatePoll(ctx, question, options, expiry)
		if err != nil {
			return err
		}

		voters := rng.Perm(seedVoterPool)[:opts.Votes]
		for _, v := range voters {
			option := poll.Options[rng.IntN(len(poll.Options))]
			res, err := votes.SubmitVote(ctx, poll.ID, option.ID, fmt.Sprintf("user_%d", v+1))
			if err != nil {
				return err
			}
			if !res.Accepted() {
				return fmt.Errorf("seed vote on poll %s rejected: %s", poll.ID, res.Reason.Message())
			}
			cast++
		}

		fmt.Fprintf(w, "Generated poll %d/%d with %d votes\n", i+1, opts.Polls, opts.Votes)
	}

	fmt.Fprintf(w, "Seeded %s polls and %s votes in %s\n",
		humanize.Comma(int64(opts.Polls)), humanize.Comma(cast), time.Since(start).Round(time.Millisecond))

	return nil
}
