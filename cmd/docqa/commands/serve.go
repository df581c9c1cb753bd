package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
	"github.com/mahmoudramadan155/qa-queue-service/internal/server"
	"github.com/mahmoudramadan155/qa-queue-service/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing the upload and question-answering API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server on localhost.

The server exposes a REST/SSE API: upload documents, ask questions with
whole or streamed answers, list and delete documents, and read the query
history. Every request is scoped to the owner named in the X-User-ID header.

Examples:
  docqa serve
  docqa serve --port 9090
  DOCQA_INDEX_BACKEND=qdrant docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("providers", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup(tracing.FromEnv())
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer s.close()

			pingers := []server.Pinger{
				server.NewEmbedderPinger(s.embedder, getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
				server.NewStorePinger(s.store),
			}
			if qidx, ok := index.Backend(s.index).(*index.QdrantIndex); ok {
				pingers = append(pingers, server.NewQdrantPinger(qidx.Client()))
			}

			srv, err := server.New(s.runner, s.pipeline, s.store, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCQA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
