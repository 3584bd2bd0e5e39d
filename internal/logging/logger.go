package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"air-pollution-dashboard/internal/config"
)

const AppName = "air-pollution-dashboard"

// New builds the process logger. Development builds get coloured tint output
// with source locations; anything else logs JSON.
func New(w io.Writer, cfg config.Config, version string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", AppName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", AppName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
