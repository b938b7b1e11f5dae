package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON for aggregated deployments,
// text for local work. Every record carries the service tag so gate
// decisions stay attributable once logs from several services are mixed.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "accessgate"))
}
