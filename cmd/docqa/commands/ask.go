package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/retrieval"
	"github.com/mahmoudramadan155/qa-queue-service/internal/session"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question against the owner's uploaded documents.
func NewAskCmd() *cobra.Command {
	var owner string
	var k int
	var stream bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your uploaded documents",
		Long: `Retrieve the most relevant document chunks for a question and generate a
grounded answer through the configured backend chain.

With --stream the answer is printed token by token as it is generated,
with progress notices on stderr.

Examples:
  docqa ask --owner alice "what is the warranty period?"
  docqa ask --owner alice --stream "summarise the refund policy"
  docqa ask --owner alice -k 10 "which clauses mention liability?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer s.close()

			question := args[0]
			opts := session.Options{Retrieval: retrieval.Params{K: k}}

			if !stream {
				result, err := s.runner.Ask(ctx, owner, question, opts)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Println(result.Answer)
				fmt.Fprintf(os.Stderr, "(%s, %dms, %d chunks)\n",
					result.Variant, result.Elapsed.Milliseconds(), len(result.ChunkIDs))
				return nil
			}

			sess := s.runner.Stream(ctx, owner, question, opts)
			for ev := range sess.Events() {
				switch ev.Type {
				case qa.EventStatus:
					fmt.Fprintf(os.Stderr, "[%s]\n", ev.Message)
				case qa.EventChunk:
					fmt.Print(ev.Content)
				case qa.EventComplete:
					fmt.Printf("\n")
					fmt.Fprintf(os.Stderr, "(%dms, %d chunks)\n", ev.ResponseMillis, ev.ChunksUsed)
				case qa.EventError:
					fmt.Printf("\n")
					return fmt.Errorf("ask: %s: %s", ev.Kind, ev.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID whose documents to search (required)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (default 5)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the answer as it is generated")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
