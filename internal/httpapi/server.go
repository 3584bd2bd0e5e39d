package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"air-pollution-dashboard/internal/config"
	"air-pollution-dashboard/internal/metrics"
)

func NewServer(cfg config.Config, handler http.Handler, logger *slog.Logger, m *metrics.Metrics) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(handler, logger, m),
		ReadHeaderTimeout: 10 * time.Second,
		// Predict and refresh wait on the remote API.
		WriteTimeout: cfg.APITimeout*3 + 10*time.Second,
	}
}
