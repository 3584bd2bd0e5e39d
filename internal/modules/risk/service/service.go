// Package service coordinates the dashboard: it calls the prediction API,
// applies the per-endpoint fallbacks, and records the outcome in the shared
// state, the assessment history and the event stream.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"air-pollution-dashboard/internal/events"
	"air-pollution-dashboard/internal/metrics"
	"air-pollution-dashboard/internal/modules/risk/charts"
	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/estimator"
	"air-pollution-dashboard/internal/modules/risk/input"
	"air-pollution-dashboard/internal/modules/risk/repository"
	"air-pollution-dashboard/internal/modules/risk/state"
	"air-pollution-dashboard/internal/modules/risk/types"
)

const (
	BannerPredictSuccess = "Risk assessment completed successfully!"
	BannerOffline        = "Using offline prediction mode"
	BannerReset          = "Form reset to default values"
	BannerHealthFailure  = "Cannot connect to backend API. Predictions will use offline mode. " +
		"The backend might be starting up (takes 30-50 seconds on free tier). " +
		"Please try again in a moment."

	SuccessBannerTTL = 5 * time.Second
)

type Deps struct {
	API        client.API
	Repository repository.RiskRepository
	State      *state.State
	Charts     *charts.Renderer
	ChartPage  charts.PageWriter
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

type Service struct {
	api       client.API
	repo      repository.RiskRepository
	state     *state.State
	charts    *charts.Renderer
	chartPage charts.PageWriter
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New wires the service and draws the initial (fallback) charts.
func New(d Deps) *Service {
	s := &Service{
		api:       d.API,
		repo:      d.Repository,
		state:     d.State,
		charts:    d.Charts,
		chartPage: d.ChartPage,
		events:    d.Events,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		newID:     d.NewID,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.state == nil {
		s.state = state.New(input.Defaults())
	}
	s.renderCharts(s.state.Snapshot().Aggregate)
	return s
}

func (s *Service) Snapshot() state.Snapshot { return s.state.Snapshot() }

// Load runs the three load-time calls concurrently. Each applies its own
// fallback, so Load itself only fails when ctx is cancelled.
func (s *Service) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.CheckHealth(gctx); return nil })
	g.Go(func() error { s.LoadDashboard(gctx); return nil })
	g.Go(func() error { s.LoadModel(gctx); return nil })
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// CheckHealth updates the connection status. Failure shows the offline
// banner and resets accuracy to the fallback value.
func (s *Service) CheckHealth(ctx context.Context) {
	start := time.Now()
	res, err := s.api.Health(ctx)
	s.observe("health", start, err)

	s.state.SetStatus(res.Status)
	if err != nil {
		s.fallback("health", err)
		s.state.ShowBanner(state.BannerError, BannerHealthFailure, 0)
		s.setAccuracy(types.FallbackAccuracy, state.SourceHealth)
		return
	}
	s.state.DismissBanner()
	if res.Accuracy != nil {
		s.setAccuracy(*res.Accuracy, state.SourceHealth)
	}
}

// LoadDashboard replaces the chart data with the remote aggregate, or the
// built-in one when the endpoint fails.
func (s *Service) LoadDashboard(ctx context.Context) {
	start := time.Now()
	agg, accuracy, err := s.api.Dashboard(ctx)
	s.observe("dashboard", start, err)

	if err != nil {
		s.fallback("dashboard", err)
		agg = types.FallbackDashboard()
	} else if agg.RiskDistribution == nil {
		agg.RiskDistribution = types.FallbackRiskDistribution()
	}

	// Charts first, so a page that sees the new revision also gets the
	// new charts.
	s.renderCharts(agg)
	s.state.SetAggregate(agg)
	if accuracy != nil {
		s.setAccuracy(*accuracy, state.SourceDashboard)
	}
}

func (s *Service) LoadModel(ctx context.Context) {
	start := time.Now()
	info, err := s.api.Model(ctx)
	s.observe("model", start, err)

	if err != nil {
		s.fallback("model", err)
		s.setAccuracy(types.FallbackAccuracy, state.SourceModel)
		return
	}
	s.logger.Info("model info loaded", "name", info.Name, "accuracy", info.Accuracy)
	s.setAccuracy(info.Accuracy, state.SourceModel)
}

// Outcome is the result of one assessment request.
type Outcome struct {
	Assessment types.RiskAssessment
	// Degraded is set when the assessment came from the local estimator.
	Degraded bool
	// Reason is the remote failure that forced the fallback, if any.
	Reason string
}

// Assess asks the prediction API for an assessment of r and falls back to the
// local estimator on any failure. The result is stored and published; neither
// failing affects the returned outcome.
func (s *Service) Assess(ctx context.Context, r types.Reading) Outcome {
	start := time.Now()
	a, err := s.api.Predict(ctx, r)
	s.observe("predict", start, err)

	out := Outcome{}
	if err != nil {
		s.fallback("predict", err)
		a = estimator.Estimate(r)
		out.Degraded = true
		out.Reason = failureReason(err)
	}
	a.ID = s.newID()
	a.CreatedAt = s.now().UTC()
	out.Assessment = a

	s.metrics.Assessment(string(a.Source), string(a.RiskLevel))
	if s.repo != nil {
		if err := s.repo.InsertAssessment(ctx, a); err != nil {
			s.logger.Error("store assessment failed", "id", a.ID, "error", err)
		}
	}
	if err := s.events.PublishAssessment(ctx, a); err != nil {
		s.logger.Warn("publish assessment failed", "id", a.ID, "error", err)
	}
	return out
}

// Predict is the dashboard's submit action: it runs Assess with the busy
// indicator raised and shows the result with the matching banner.
// Overlapping calls share the busy flag and the last to finish wins the
// results panel.
func (s *Service) Predict(ctx context.Context, r types.Reading) Outcome {
	s.state.SetBusy(true)
	defer s.state.SetBusy(false)

	s.state.DismissBanner()
	s.state.SetReading(r)

	out := s.Assess(ctx, r)
	s.state.SetResult(out.Assessment)
	if out.Degraded {
		msg := BannerOffline
		if out.Reason != "" {
			msg = fmt.Sprintf("%s: %s", BannerOffline, out.Reason)
		}
		s.state.ShowBanner(state.BannerError, msg, 0)
	} else {
		s.state.ShowBanner(state.BannerSuccess, BannerPredictSuccess, SuccessBannerTTL)
	}
	return out
}

// Reset restores the default form values and hides the results panel.
func (s *Service) Reset() types.Reading {
	r := input.Defaults()
	s.state.SetReading(r)
	s.state.HideResults()
	s.state.ShowBanner(state.BannerSuccess, BannerReset, SuccessBannerTTL)
	return r
}

func (s *Service) DismissBanner() { s.state.DismissBanner() }

// History returns the most recent assessments, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]types.RiskAssessment, error) {
	if s.repo == nil {
		return []types.RiskAssessment{}, nil
	}
	return s.repo.ListAssessments(ctx, limit)
}

// HandleTelemetry stores a station reading and overlays it onto the form.
func (s *Service) HandleTelemetry(ctx context.Context, t types.Telemetry) error {
	if s.repo != nil {
		if err := s.repo.UpsertTelemetry(ctx, t); err != nil {
			return fmt.Errorf("store telemetry from %s: %w", t.StationID, err)
		}
	}
	s.state.SetReading(input.ApplyTelemetry(s.state.Snapshot().Reading, t))
	return nil
}

// PrimeFromTelemetry prefills the form with the most recent stored reading.
func (s *Service) PrimeFromTelemetry(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	t, err := s.repo.LatestTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("load latest telemetry: %w", err)
	}
	if t != nil {
		s.state.SetReading(input.ApplyTelemetry(s.state.Snapshot().Reading, *t))
	}
	return nil
}

// WriteCharts writes the live charts as an HTML page.
func (s *Service) WriteCharts(w io.Writer) error {
	if s.chartPage == nil {
		return charts.ErrNothingRendered
	}
	return s.chartPage.WritePage(w)
}

// StartRefresh reloads the dashboard aggregate on schedule until the
// returned stop function is called. An empty schedule disables refreshing.
func (s *Service) StartRefresh(ctx context.Context, schedule string, timeout time.Duration) (stop func(), err error) {
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.refreshDashboard(ctx, timeout) }); err != nil {
		return nil, fmt.Errorf("schedule dashboard refresh %q: %w", schedule, err)
	}
	c.Start()
	s.logger.Info("dashboard refresh scheduled", "schedule", schedule)
	return func() { <-c.Stop().Done() }, nil
}

func (s *Service) refreshDashboard(ctx context.Context, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.LoadDashboard(rctx)
	s.logger.Debug("dashboard refreshed")
}

func (s *Service) setAccuracy(v float64, src state.AccuracySource) {
	s.state.SetAccuracy(v, src)
	s.metrics.SetModelAccuracy(v)
}

func (s *Service) renderCharts(agg types.DashboardAggregate) {
	if s.charts == nil {
		return
	}
	if err := s.charts.Render(agg); err != nil {
		s.logger.Error("render charts failed", "error", err)
	}
}

func (s *Service) observe(endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = client.Kind(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	s.metrics.RemoteCall(endpoint, outcome, time.Since(start))
}

func (s *Service) fallback(endpoint string, err error) {
	s.metrics.Fallback(endpoint)
	s.logger.Warn("prediction api unavailable, using fallback",
		"endpoint", endpoint,
		"kind", client.Kind(err),
		"error", err,
	)
}

// failureReason returns the server's message for explicit failures.
func failureReason(err error) string {
	if client.Kind(err) != "application" {
		return ""
	}
	if msg, ok := goerr.Values(err)["message"].(string); ok {
		return msg
	}
	return ""
}
