// Package state holds the dashboard's shared application state.
//
// The accuracy indicator is written by three concurrent load-time calls with
// no ordering among them; whichever write lands last is what the user sees.
// Each write records its source so the outcome can be inspected.
package state

import (
	"sync"
	"time"

	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/types"
)

type AccuracySource string

const (
	SourceInitial   AccuracySource = "initial"
	SourceHealth    AccuracySource = "health"
	SourceDashboard AccuracySource = "dashboard"
	SourceModel     AccuracySource = "model"
)

type Accuracy struct {
	Value     float64
	Source    AccuracySource
	UpdatedAt time.Time
}

type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is the dismissible notice at the top of the page. A non-zero
// AutoDismiss hides it once that long has passed since ShownAt.
type Banner struct {
	Message     string
	Kind        BannerKind
	AutoDismiss time.Duration
	ShownAt     time.Time
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Accuracy       Accuracy
	Status         client.ConnectionStatus
	Banner         *Banner
	Busy           bool
	Aggregate      types.DashboardAggregate
	// ChartsRevision counts aggregate replacements since startup.
	ChartsRevision uint64
	Reading        types.Reading
	Result         *types.RiskAssessment
	ResultsVisible bool
}

type State struct {
	mu  sync.RWMutex
	now func() time.Time

	accuracy       Accuracy
	status         client.ConnectionStatus
	banner         *Banner
	busy           bool
	aggregate      types.DashboardAggregate
	chartsRevision uint64
	reading        types.Reading
	result         *types.RiskAssessment
	resultsVisible bool
}

// New returns the state shown before any remote call completes: fallback
// accuracy, fallback charts and the given form values.
func New(reading types.Reading) *State {
	return NewWithClock(reading, time.Now)
}

func NewWithClock(reading types.Reading, now func() time.Time) *State {
	return &State{
		now:       now,
		accuracy:  Accuracy{Value: types.FallbackAccuracy, Source: SourceInitial, UpdatedAt: now()},
		aggregate: types.FallbackDashboard(),
		reading:   reading,
	}
}

// SetAccuracy overwrites the accuracy indicator.
func (s *State) SetAccuracy(v float64, src AccuracySource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accuracy = Accuracy{Value: v, Source: src, UpdatedAt: s.now()}
}

func (s *State) SetStatus(st client.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *State) ShowBanner(kind BannerKind, msg string, autoDismiss time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = &Banner{Message: msg, Kind: kind, AutoDismiss: autoDismiss, ShownAt: s.now()}
}

func (s *State) DismissBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = nil
}

// SetBusy toggles the busy indicator. Overlapping predictions share one flag.
func (s *State) SetBusy(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = b
}

// SetAggregate replaces the chart data wholesale.
func (s *State) SetAggregate(agg types.DashboardAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregate = agg
	s.chartsRevision++
}

func (s *State) SetReading(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
}

// SetResult stores a and makes the results panel visible.
func (s *State) SetResult(a types.RiskAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &a
	s.reading = a.Reading
	s.resultsVisible = true
}

// HideResults hides the results panel. The last result is kept.
func (s *State) HideResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultsVisible = false
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b := s.banner; b != nil && b.AutoDismiss > 0 && s.now().Sub(b.ShownAt) >= b.AutoDismiss {
		s.banner = nil
	}

	snap := Snapshot{
		Accuracy:       s.accuracy,
		Status:         s.status,
		Busy:           s.busy,
		Aggregate:      s.aggregate,
		ChartsRevision: s.chartsRevision,
		Reading:        s.reading,
		ResultsVisible: s.resultsVisible,
	}
	if s.banner != nil {
		b := *s.banner
		snap.Banner = &b
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}
