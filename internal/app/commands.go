package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"air-pollution-dashboard/internal/config"
	db "air-pollution-dashboard/internal/db"
	"air-pollution-dashboard/internal/migrate"
	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/presenter"
	"air-pollution-dashboard/internal/modules/risk/service"
	"air-pollution-dashboard/internal/modules/risk/types"
)

// Migrate applies pending migrations and reports them.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(dbConn) }()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info("database schema up to date")
		return nil
	}
	for _, v := range applied {
		logger.Info("migration applied", "version", v)
	}
	return nil
}

type predictOutput struct {
	Assessment types.RiskAssessment `json:"assessment"`
	RiskText   string               `json:"risk_text"`
	Confidence string               `json:"confidence"`
	Degraded   bool                 `json:"degraded"`
	Reason     string               `json:"reason,omitempty"`
}

// Predict assesses one reading against the configured API, falling back to
// the local estimator, and writes the result to w as JSON. Nothing is stored.
func Predict(ctx context.Context, cfg config.Config, logger *slog.Logger, r types.Reading, w io.Writer) error {
	return predict(ctx, client.New(cfg.APIBaseURL, nil, cfg.APITimeout), logger, r, w)
}

func predict(ctx context.Context, api client.API, logger *slog.Logger, r types.Reading, w io.Writer) error {
	svc := service.New(service.Deps{API: api, Logger: logger})
	out := svc.Assess(ctx, r)
	view := presenter.Present(out.Assessment)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(predictOutput{
		Assessment: out.Assessment,
		RiskText:   view.RiskText,
		Confidence: view.Confidence,
		Degraded:   out.Degraded,
		Reason:     out.Reason,
	}); err != nil {
		return fmt.Errorf("write assessment: %w", err)
	}
	return nil
}
