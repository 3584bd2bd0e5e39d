package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"air-pollution-dashboard/internal/modules/risk/charts"
	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/input"
	"air-pollution-dashboard/internal/modules/risk/presenter"
	"air-pollution-dashboard/internal/modules/risk/state"
	"air-pollution-dashboard/internal/modules/risk/types"
)

// fakeAPI implements client.API with canned results.
type fakeAPI struct {
	health      client.HealthResult
	healthErr   error
	dashboard   types.DashboardAggregate
	dashAcc     *float64
	dashErr     error
	model       client.ModelInfo
	modelErr    error
	predict     types.RiskAssessment
	predictErr  error
	predictHook func()
}

func (f *fakeAPI) Health(context.Context) (client.HealthResult, error) {
	return f.health, f.healthErr
}

func (f *fakeAPI) Dashboard(context.Context) (types.DashboardAggregate, *float64, error) {
	return f.dashboard, f.dashAcc, f.dashErr
}

func (f *fakeAPI) Model(context.Context) (client.ModelInfo, error) {
	return f.model, f.modelErr
}

func (f *fakeAPI) Predict(_ context.Context, r types.Reading) (types.RiskAssessment, error) {
	if f.predictHook != nil {
		f.predictHook()
	}
	if f.predictErr != nil {
		return types.RiskAssessment{}, f.predictErr
	}
	a := f.predict
	a.Reading = r
	return a, nil
}

type fakeRepo struct {
	mu          sync.Mutex
	assessments []types.RiskAssessment
	telemetry   []types.Telemetry
	insertErr   error
}

func (r *fakeRepo) InsertAssessment(_ context.Context, a types.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.assessments = append(r.assessments, a)
	return nil
}

func (r *fakeRepo) ListAssessments(_ context.Context, limit int) ([]types.RiskAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.RiskAssessment{}
	for i := len(r.assessments) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.assessments[i])
	}
	return out, nil
}

func (r *fakeRepo) UpsertTelemetry(_ context.Context, t types.Telemetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = append(r.telemetry, t)
	return nil
}

func (r *fakeRepo) LatestTelemetry(context.Context) (*types.Telemetry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.telemetry) == 0 {
		return nil, nil
	}
	t := r.telemetry[len(r.telemetry)-1]
	return &t, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []types.RiskAssessment
}

func (p *fakePublisher) PublishAssessment(_ context.Context, a types.RiskAssessment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, a)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// recordingSurface remembers the last trend it was asked to draw.
type recordingSurface struct {
	mu        sync.Mutex
	trend     []types.TrendPoint
	labels    []string
	renders   int
	liveCount int
}

type surfaceHandle struct{ s *recordingSurface }

func (h surfaceHandle) Dispose() {
	h.s.mu.Lock()
	h.s.liveCount--
	h.s.mu.Unlock()
}

func (s *recordingSurface) Distribution(entries []types.DistributionEntry, _ []string) (charts.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = nil
	for _, e := range entries {
		s.labels = append(s.labels, e.Label)
	}
	s.liveCount++
	return surfaceHandle{s}, nil
}

func (s *recordingSurface) Trend(points []types.TrendPoint, _ string) (charts.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trend = points
	s.renders++
	s.liveCount++
	return surfaceHandle{s}, nil
}

type fixture struct {
	svc     *Service
	api     *fakeAPI
	repo    *fakeRepo
	events  *fakePublisher
	surface *recordingSurface
	charts  *charts.Renderer
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	f := &fixture{
		api:     api,
		repo:    &fakeRepo{},
		events:  &fakePublisher{},
		surface: &recordingSurface{},
	}
	f.charts = charts.NewRenderer(f.surface)
	ids := 0
	f.svc = New(Deps{
		API:        api,
		Repository: f.repo,
		State:      state.New(input.Defaults()),
		Charts:     f.charts,
		Events:     f.events,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	return f
}

func unavailable() error {
	return fmt.Errorf("%w: dial tcp: connection refused", client.ErrUnavailable)
}

func TestPredict_remoteUnavailableUsesEstimator(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})

	r := input.Defaults()
	r.PM25 = 5
	out := f.svc.Predict(context.Background(), r)

	if !out.Degraded || out.Assessment.Source != types.SourceFallback {
		t.Fatalf("outcome = %+v; want degraded fallback", out)
	}
	v := presenter.Present(out.Assessment)
	if v.RiskText != "Low Risk" || v.AQI != "20.8" || v.AQICategory != "Good" {
		t.Errorf("view = %q %q %q; want Low Risk 20.8 Good", v.RiskText, v.AQI, v.AQICategory)
	}
	found := false
	for _, g := range v.General {
		if g == "Air quality is satisfactory" {
			found = true
		}
	}
	if !found {
		t.Errorf("General = %v; want to contain satisfactory", v.General)
	}

	snap := f.svc.Snapshot()
	if snap.Busy {
		t.Error("Busy still set after Predict")
	}
	if snap.Banner == nil || snap.Banner.Kind != state.BannerError || snap.Banner.Message != BannerOffline {
		t.Errorf("Banner = %+v; want offline error banner", snap.Banner)
	}
	if !snap.ResultsVisible || snap.Result == nil || snap.Result.ID != "id-1" {
		t.Errorf("result = %+v visible=%v", snap.Result, snap.ResultsVisible)
	}
	if len(f.repo.assessments) != 1 || len(f.events.published) != 1 {
		t.Errorf("stored %d, published %d; want 1 each", len(f.repo.assessments), len(f.events.published))
	}
}

func TestPredict_remoteSuccess(t *testing.T) {
	api := &fakeAPI{predict: types.RiskAssessment{
		Source:      types.SourceRemote,
		RiskLevel:   types.RiskModerate,
		Confidence:  88,
		AQI:         75,
		AQICategory: "Moderate",
	}}
	f := newFixture(t, api)

	out := f.svc.Predict(context.Background(), types.Reading{PM25: 20})
	if out.Degraded || out.Assessment.Source != types.SourceRemote {
		t.Fatalf("outcome = %+v; want remote", out)
	}
	if out.Assessment.ID != "id-1" || !out.Assessment.CreatedAt.Equal(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("ID/CreatedAt = %q %v", out.Assessment.ID, out.Assessment.CreatedAt)
	}
	b := f.svc.Snapshot().Banner
	if b == nil || b.Kind != state.BannerSuccess || b.Message != BannerPredictSuccess || b.AutoDismiss != 5*time.Second {
		t.Errorf("Banner = %+v; want auto-dismissing success", b)
	}
}

func TestPredict_applicationFailureCarriesMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":false,"message":"model not loaded"}`)
	}))
	defer ts.Close()

	f := newFixture(t, &fakeAPI{})
	f.svc.api = client.New(ts.URL+"/api", ts.Client(), time.Second)

	out := f.svc.Predict(context.Background(), types.Reading{PM25: 50})
	if !out.Degraded || out.Assessment.RiskLevel != types.RiskHigh {
		t.Fatalf("outcome = %+v; want degraded High", out)
	}
	if out.Reason != "model not loaded" {
		t.Errorf("Reason = %q", out.Reason)
	}
	if b := f.svc.Snapshot().Banner; b == nil || !strings.Contains(b.Message, "model not loaded") {
		t.Errorf("Banner = %+v; want server message", b)
	}
}

func TestPredict_busyDuringCall(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})
	var busyDuring bool
	f.api.predictHook = func() { busyDuring = f.svc.Snapshot().Busy }

	f.svc.Predict(context.Background(), types.Reading{})
	if !busyDuring {
		t.Error("Busy not set while request in flight")
	}
	if f.svc.Snapshot().Busy {
		t.Error("Busy not cleared after request")
	}
}

func TestPredict_storageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})
	f.repo.insertErr = errors.New("disk full")

	out := f.svc.Predict(context.Background(), types.Reading{PM25: 30})
	if out.Assessment.RiskLevel != types.RiskModerate {
		t.Errorf("RiskLevel = %q; want Moderate", out.Assessment.RiskLevel)
	}
	if !f.svc.Snapshot().ResultsVisible {
		t.Error("results hidden after storage failure")
	}
}

func TestCheckHealth_healthyShowsAccuracyTier(t *testing.T) {
	f := newFixture(t, &fakeAPI{health: client.HealthResult{Status: client.StatusConnected, Accuracy: types.Float(92.3)}})

	f.svc.CheckHealth(context.Background())

	snap := f.svc.Snapshot()
	if snap.Status != client.StatusConnected {
		t.Errorf("Status = %q", snap.Status)
	}
	acc := presenter.AccuracyView(snap.Accuracy.Value)
	if acc.Text != "92.3%" || acc.Color != presenter.ColorHigh {
		t.Errorf("accuracy = %+v; want 92.3%% #00ff88", acc)
	}
	if snap.Banner != nil {
		t.Errorf("Banner = %+v; want none", snap.Banner)
	}
}

func TestCheckHealth_failure(t *testing.T) {
	tests := []struct {
		name   string
		status client.ConnectionStatus
	}{
		{"transport", client.StatusDisconnected},
		{"unhealthy", client.StatusAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &fakeAPI{health: client.HealthResult{Status: tt.status}, healthErr: unavailable()})
			f.svc.state.SetAccuracy(97, state.SourceModel)

			f.svc.CheckHealth(context.Background())

			snap := f.svc.Snapshot()
			if snap.Status != tt.status {
				t.Errorf("Status = %q; want %q", snap.Status, tt.status)
			}
			if snap.Accuracy.Value != types.FallbackAccuracy || snap.Accuracy.Source != state.SourceHealth {
				t.Errorf("Accuracy = %+v; want fallback from health", snap.Accuracy)
			}
			if snap.Banner == nil || snap.Banner.Message != BannerHealthFailure || snap.Banner.AutoDismiss != 0 {
				t.Errorf("Banner = %+v", snap.Banner)
			}
		})
	}
}

func TestLoadDashboard_failureRendersFallbackTrend(t *testing.T) {
	f := newFixture(t, &fakeAPI{dashErr: unavailable()})

	f.svc.LoadDashboard(context.Background())

	want := []types.TrendPoint{
		{Period: "Jan", PM25: 28}, {Period: "Feb", PM25: 32}, {Period: "Mar", PM25: 35},
		{Period: "Apr", PM25: 30}, {Period: "May", PM25: 25}, {Period: "Jun", PM25: 22},
		{Period: "Jul", PM25: 28}, {Period: "Aug", PM25: 33}, {Period: "Sep", PM25: 38},
		{Period: "Oct", PM25: 35}, {Period: "Nov", PM25: 32},
	}
	if !reflect.DeepEqual(f.surface.trend, want) {
		t.Errorf("trend chart = %v; want %v", f.surface.trend, want)
	}
	if !reflect.DeepEqual(f.svc.Snapshot().Aggregate.MonthlyTrends, want) {
		t.Errorf("state trends = %v", f.svc.Snapshot().Aggregate.MonthlyTrends)
	}
	if f.charts.Live() != 2 || f.surface.liveCount != 2 {
		t.Errorf("live charts = %d/%d; want 2", f.charts.Live(), f.surface.liveCount)
	}
}

func TestLoadDashboard_success(t *testing.T) {
	api := &fakeAPI{
		dashboard: types.DashboardAggregate{
			MonthlyTrends: []types.TrendPoint{{Period: "Dec", PM25: 40}},
		},
		dashAcc: types.Float(88.8),
	}
	f := newFixture(t, api)

	f.svc.LoadDashboard(context.Background())

	snap := f.svc.Snapshot()
	if len(snap.Aggregate.MonthlyTrends) != 1 || snap.Aggregate.MonthlyTrends[0].Period != "Dec" {
		t.Errorf("MonthlyTrends = %v", snap.Aggregate.MonthlyTrends)
	}
	if want := []string{"Low", "Moderate", "High"}; !reflect.DeepEqual(f.surface.labels, want) {
		t.Errorf("distribution labels = %v; want fallback %v", f.surface.labels, want)
	}
	if snap.Accuracy.Value != 88.8 || snap.Accuracy.Source != state.SourceDashboard {
		t.Errorf("Accuracy = %+v", snap.Accuracy)
	}
}

func TestLoadModel(t *testing.T) {
	f := newFixture(t, &fakeAPI{model: client.ModelInfo{Name: "rf", Accuracy: 81.5}})
	f.svc.LoadModel(context.Background())
	if got := f.svc.Snapshot().Accuracy; got.Value != 81.5 || got.Source != state.SourceModel {
		t.Errorf("Accuracy = %+v", got)
	}

	f = newFixture(t, &fakeAPI{modelErr: unavailable()})
	f.svc.state.SetAccuracy(99, state.SourceHealth)
	f.svc.LoadModel(context.Background())
	if got := f.svc.Snapshot().Accuracy; got.Value != types.FallbackAccuracy {
		t.Errorf("Accuracy = %+v; want fallback", got)
	}
}

func TestLoad_allUnavailable(t *testing.T) {
	api := &fakeAPI{
		health:    client.HealthResult{Status: client.StatusDisconnected},
		healthErr: unavailable(),
		dashErr:   unavailable(),
		modelErr:  unavailable(),
	}
	f := newFixture(t, api)

	if err := f.svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := f.svc.Snapshot()
	if snap.Accuracy.Value != types.FallbackAccuracy {
		t.Errorf("Accuracy = %v; want 85", snap.Accuracy.Value)
	}
	if snap.Status != client.StatusDisconnected {
		t.Errorf("Status = %q", snap.Status)
	}
	if len(snap.Aggregate.MonthlyTrends) != 11 {
		t.Errorf("MonthlyTrends len = %d", len(snap.Aggregate.MonthlyTrends))
	}
	if f.charts.Live() != 2 {
		t.Errorf("Live() = %d; want 2", f.charts.Live())
	}
}

func TestLoad_accuracyComesFromOneSource(t *testing.T) {
	api := &fakeAPI{
		health:  client.HealthResult{Status: client.StatusConnected, Accuracy: types.Float(91)},
		dashAcc: types.Float(92),
		model:   client.ModelInfo{Accuracy: 93},
	}
	f := newFixture(t, api)

	if err := f.svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[state.AccuracySource]float64{state.SourceHealth: 91, state.SourceDashboard: 92, state.SourceModel: 93}
	got := f.svc.Snapshot().Accuracy
	if v, ok := want[got.Source]; !ok || v != got.Value {
		t.Errorf("Accuracy = %+v; value does not match its source", got)
	}
}

func TestLoad_cancelledContext(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.svc.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load = %v; want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})
	f.svc.Predict(context.Background(), types.Reading{PM25: 80})

	r := f.svc.Reset()
	if r != input.Defaults() {
		t.Errorf("Reset() = %+v", r)
	}
	snap := f.svc.Snapshot()
	if snap.ResultsVisible {
		t.Error("results still visible after reset")
	}
	if snap.Reading != input.Defaults() {
		t.Errorf("Reading = %+v", snap.Reading)
	}
	if snap.Banner == nil || snap.Banner.Message != BannerReset || snap.Banner.Kind != state.BannerSuccess {
		t.Errorf("Banner = %+v", snap.Banner)
	}
}

func TestHandleTelemetry(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	tel := types.Telemetry{StationID: "lagos-1", Timestamp: time.Now(), PM25: types.Float(61), NO2: types.Float(44)}

	if err := f.svc.HandleTelemetry(context.Background(), tel); err != nil {
		t.Fatalf("HandleTelemetry: %v", err)
	}
	r := f.svc.Snapshot().Reading
	if r.PM25 != 61 || r.NO2 != 44 || r.Location != "lagos-1" {
		t.Errorf("Reading = %+v", r)
	}
	if r.PM10 != input.Defaults().PM10 {
		t.Errorf("PM10 = %v; want default kept", r.PM10)
	}
	if len(f.repo.telemetry) != 1 {
		t.Errorf("stored %d telemetry rows", len(f.repo.telemetry))
	}
}

func TestPrimeFromTelemetry(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	if err := f.svc.PrimeFromTelemetry(context.Background()); err != nil {
		t.Fatalf("PrimeFromTelemetry (empty): %v", err)
	}
	if f.svc.Snapshot().Reading != input.Defaults() {
		t.Error("Reading changed without telemetry")
	}

	f.repo.telemetry = append(f.repo.telemetry, types.Telemetry{StationID: "s", O3: types.Float(12)})
	if err := f.svc.PrimeFromTelemetry(context.Background()); err != nil {
		t.Fatalf("PrimeFromTelemetry: %v", err)
	}
	if got := f.svc.Snapshot().Reading.O3; got != 12 {
		t.Errorf("O3 = %v; want 12", got)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})
	for _, pm := range []float64{5, 20, 50} {
		f.svc.Assess(context.Background(), types.Reading{PM25: pm})
	}
	got, err := f.svc.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != "id-3" || got[1].ID != "id-2" {
		t.Errorf("History = %+v", got)
	}
}

func TestAssess_doesNotTouchResultsPanel(t *testing.T) {
	f := newFixture(t, &fakeAPI{predictErr: unavailable()})
	f.svc.Assess(context.Background(), types.Reading{PM25: 5})
	snap := f.svc.Snapshot()
	if snap.ResultsVisible || snap.Banner != nil {
		t.Errorf("snapshot = %+v; Assess should not change the dashboard", snap)
	}
}

func TestStartRefresh(t *testing.T) {
	f := newFixture(t, &fakeAPI{})

	stop, err := f.svc.StartRefresh(context.Background(), "", time.Second)
	if err != nil {
		t.Fatalf("StartRefresh(empty): %v", err)
	}
	stop()

	if _, err := f.svc.StartRefresh(context.Background(), "not a schedule", time.Second); err == nil {
		t.Error("StartRefresh(invalid): expected error")
	}

	stop, err = f.svc.StartRefresh(context.Background(), "@every 1h", time.Second)
	if err != nil {
		t.Fatalf("StartRefresh: %v", err)
	}
	stop()
}

func TestRefreshDashboard(t *testing.T) {
	f := newFixture(t, &fakeAPI{dashboard: types.DashboardAggregate{MonthlyTrends: []types.TrendPoint{{Period: "Q1", PM25: 10}}}})
	before := f.surface.renders

	f.svc.refreshDashboard(context.Background(), time.Second)
	if f.surface.renders != before+1 {
		t.Errorf("renders = %d; want %d", f.surface.renders, before+1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.svc.refreshDashboard(ctx, time.Second)
	if f.surface.renders != before+1 {
		t.Error("refresh ran after context cancellation")
	}
}

func TestWriteCharts_withoutPage(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	if err := f.svc.WriteCharts(io.Discard); !errors.Is(err, charts.ErrNothingRendered) {
		t.Errorf("WriteCharts = %v; want ErrNothingRendered", err)
	}
}

func TestWriteCharts_echarts(t *testing.T) {
	surface := charts.NewEChartsSurface()
	svc := New(Deps{
		API:       &fakeAPI{},
		Charts:    charts.NewRenderer(surface),
		ChartPage: surface,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	var sb strings.Builder
	if err := svc.WriteCharts(&sb); err != nil {
		t.Fatalf("WriteCharts: %v", err)
	}
	if !strings.Contains(sb.String(), "Jan") {
		t.Error("chart page missing fallback trend")
	}
}
