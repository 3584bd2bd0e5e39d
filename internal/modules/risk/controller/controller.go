package controller

import (
	"context"
	"io"
	"net/http"

	"air-pollution-dashboard/internal/modules/risk/service"
	"air-pollution-dashboard/internal/modules/risk/state"
	"air-pollution-dashboard/internal/modules/risk/types"
)

// RiskService is the part of service.Service the handlers use.
type RiskService interface {
	Snapshot() state.Snapshot
	Load(ctx context.Context) error
	Predict(ctx context.Context, r types.Reading) service.Outcome
	Assess(ctx context.Context, r types.Reading) service.Outcome
	Reset() types.Reading
	DismissBanner()
	History(ctx context.Context, limit int) ([]types.RiskAssessment, error)
	WriteCharts(w io.Writer) error
}

type RiskController interface {
	RegisterRoutes(mux *http.ServeMux)
	// RegisterAPIRoutes mounts the JSON API behind wrap, which adds the
	// cross-origin and compression handling.
	RegisterAPIRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler)
}

type riskControllerImpl struct {
	service RiskService
}

func NewRiskController(svc RiskService) RiskController {
	return &riskControllerImpl{service: svc}
}

func (c *riskControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleDashboard)
	mux.HandleFunc("POST /predict", c.handlePredict)
	mux.HandleFunc("POST /reset", c.handleReset)
	mux.HandleFunc("POST /refresh", c.handleRefresh)
	mux.HandleFunc("POST /banner/dismiss", c.handleDismissBanner)
	mux.HandleFunc("GET /charts", c.handleCharts)
	mux.HandleFunc("GET /charts/panel", c.handleChartsPanel)
}

func (c *riskControllerImpl) RegisterAPIRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(h http.Handler) http.Handler { return h }
	}
	mux.Handle("GET /api/v1/assessments", wrap(http.HandlerFunc(c.handleAssessments)))
	mux.Handle("POST /api/v1/predict", wrap(http.HandlerFunc(c.handleAPIPredict)))
	mux.Handle("GET /api/v1/dashboard", wrap(http.HandlerFunc(c.handleAPIDashboard)))
	// Preflight requests for the JSON API.
	mux.Handle("OPTIONS /api/v1/", wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}
