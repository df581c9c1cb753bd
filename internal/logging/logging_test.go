package logging

import (
	"context"
	"log/slog"
	"testing"
)

func Test_Logging_ScopedKeyWinsOverBare(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DOCQA_LOG_LEVEL", "debug")

	log := New()
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("DOCQA_LOG_LEVEL=debug not honoured over LOG_LEVEL=error")
	}
}

func Test_Logging_BareKeyIsFallback(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DOCQA_LOG_LEVEL", "")

	log := New()
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("LOG_LEVEL=warn fallback not applied")
	}
	if !log.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn level should be enabled")
	}
}

func Test_Logging_ContextRoundTrip(t *testing.T) {
	t.Parallel()

	log := Discard()
	ctx := WithLogger(context.Background(), log)
	if FromContext(ctx) != log {
		t.Error("logger not returned from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("missing logger should fall back to slog.Default")
	}
}
