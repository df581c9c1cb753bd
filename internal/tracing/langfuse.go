// Package tracing wires the optional Langfuse callback handler into the
// eino generation calls, so every chain attempt shows up as a trace span.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the local Langfuse deployment the docs assume.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings. It is built once at
// startup (FromEnv or the YAML config) and passed to Setup.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// FromEnv reads the LANGFUSE_* environment keys.
func FromEnv() Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether tracing is configured. Both keys are required;
// a half-configured pair is treated as disabled rather than an error.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler from cfg. Returns a flush
// function that must be called before process exit so buffered traces are
// sent. When cfg is not Enabled, both return values are nil and tracing is
// silently disabled.
func Setup(cfg Config) (callbacks.Handler, func(), bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})

	return handler, flusher, true
}
