package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"math-problem-service/internal/app"
	"math-problem-service/internal/config"
	"math-problem-service/internal/domain"
)

// NewHistoryCmd prints the most recent sessions from the configured store.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent problem sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := store.ListRecent(cmd.Context(), app.NormalizeLimit(limit))
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", app.DefaultHistoryLimit, "number of sessions to show")
	return cmd
}

func printHistory(w io.Writer, entries []domain.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no sessions yet")
		return
	}
	for _, e := range entries {
		s := e.Session
		status := "unanswered"
		if sub := e.Submission; sub != nil {
			status = "wrong"
			if sub.IsCorrect {
				status = "correct"
			}
			status = fmt.Sprintf("%s answer=%s delta=%+d account=%s", status,
				strconv.FormatFloat(sub.UserAnswer, 'f', -1, 64), sub.ScoreDelta, sub.AccountID)
		}
		fmt.Fprintf(w, "%s  %s  %-6s %-14s %s\n    %s\n",
			s.CreatedAt.Format(time.RFC3339), s.ID, s.Difficulty, s.Topic, status, s.ProblemText)
	}
}
