// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/audit"
	"github.com/mahmoudramadan155/qa-queue-service/internal/config"
	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa — question answering over your own documents",
		Long: `docqa is a local-first document question-answering service.

Upload plain-text documents, then ask natural language questions: docqa
chunks and embeds your documents into a vector index, retrieves the most
relevant passages per question, and generates a grounded answer through a
configurable chain of LLM backends with an extractive fallback.

Providers are selected via environment variables or a YAML config file
(~/.docqa/config.yaml). See 'docqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewUploadCmd(),
		NewAskCmd(),
		NewDocumentsCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
