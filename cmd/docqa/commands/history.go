package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
)

// NewHistoryCmd constructs the `docqa history` command, which prints the
// owner's most recent answered questions.
func NewHistoryCmd() *cobra.Command {
	var owner string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := buildStack(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer s.close()

			records, err := s.store.RecentQueries(ctx, owner, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("no history")
				return nil
			}

			for _, rec := range records {
				fmt.Printf("[%s] (%dms, %d chunks)\n  Q: %s\n  A: %s\n\n",
					rec.CreatedAt.Local().Format(time.RFC3339),
					rec.Elapsed.Milliseconds(), rec.ChunksUsed,
					rec.Question, rec.Answer)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of entries to show")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
