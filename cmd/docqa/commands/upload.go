package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
)

// NewUploadCmd constructs the `docqa upload` command, which ingests one or
// more plain-text files into the owner's document collection.
func NewUploadCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload plain-text documents for question answering",
		Long: `Chunk, embed, and index one or more plain-text files.

Re-uploading a file with identical content is a no-op: the existing
document is reported and nothing is re-embedded.

Examples:
  docqa upload --owner alice manual.txt
  docqa upload --owner alice docs/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			defer s.close()

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("upload: read %s: %w", path, err)
				}

				doc, created, err := s.pipeline.Ingest(ctx, owner, filepath.Base(path), content)
				if err != nil {
					return fmt.Errorf("upload: ingest %s: %w", path, err)
				}

				if created {
					fmt.Printf("uploaded %s: document %s (%d chunks)\n", path, doc.ID, doc.ChunkCount)
				} else {
					fmt.Printf("skipped %s: identical content already uploaded as document %s\n", path, doc.ID)
				}
				log.Info("upload finished",
					slog.String("file", path),
					slog.String("document_id", doc.ID),
					slog.Bool("created", created),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID the documents belong to (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
