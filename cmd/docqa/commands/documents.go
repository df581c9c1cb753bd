package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
)

// NewDocumentsCmd constructs the `docqa documents` command group for
// listing and deleting uploaded documents.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List and delete uploaded documents",
	}

	cmd.AddCommand(newDocumentsListCmd(), newDocumentsDeleteCmd(), newDocumentsWipeCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the owner's uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := buildStack(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}
			defer s.close()

			docs, err := s.store.ListDocuments(ctx, owner)
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}
			if len(docs) == 0 {
				fmt.Println("no documents")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tCHUNKS\tSIZE\tUPLOADED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					d.ID, d.Filename, d.ChunkCount, d.Size, d.CreatedAt.Local().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "delete [document-id]",
		Short: "Delete one document and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := buildStack(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			defer s.close()

			found, err := s.pipeline.Delete(ctx, owner, args[0])
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			if !found {
				return fmt.Errorf("documents delete: document %s not found", args[0])
			}
			fmt.Printf("deleted document %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDocumentsWipeCmd() *cobra.Command {
	var owner string
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every document, vector, and history record for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("documents wipe: pass --yes to confirm wiping all data for owner %q", owner)
			}
			ctx := cmd.Context()

			s, err := buildStack(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("documents wipe: %w", err)
			}
			defer s.close()

			if err := s.pipeline.Wipe(ctx, owner); err != nil {
				return fmt.Errorf("documents wipe: %w", err)
			}
			fmt.Printf("wiped all data for owner %s\n", owner)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID (required)")
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the wipe")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
