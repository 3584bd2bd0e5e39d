// Package charts renders the dashboard's risk distribution and PM2.5 trend
// charts. Chart instances are owned by a Renderer, which disposes the previous
// pair before creating a new one.
package charts

import (
	"fmt"
	"io"
	"sync"

	"air-pollution-dashboard/internal/modules/risk/types"
)

const TrendSeries = "PM2.5 (μg/m³)"

// DistributionColors are applied to the distribution slices in order.
var DistributionColors = []string{"#00b09b", "#f9d423", "#ff416c"}

// Handle is a live chart instance.
type Handle interface {
	Dispose()
}

// Surface creates chart instances.
type Surface interface {
	Distribution(entries []types.DistributionEntry, colors []string) (Handle, error)
	Trend(points []types.TrendPoint, series string) (Handle, error)
}

type Renderer struct {
	mu           sync.Mutex
	surface      Surface
	distribution Handle
	trend        Handle
	live         int
}

func NewRenderer(s Surface) *Renderer {
	return &Renderer{surface: s}
}

// Render replaces both charts with ones built from agg. A nil distribution is
// drawn from the built-in fallback.
func (r *Renderer) Render(agg types.DashboardAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disposeLocked()

	dist := agg.RiskDistribution
	if dist == nil {
		dist = types.FallbackRiskDistribution()
	}
	h, err := r.surface.Distribution(dist, DistributionColors)
	if err != nil {
		return fmt.Errorf("create distribution chart: %w", err)
	}
	r.distribution = h
	r.live++

	h, err = r.surface.Trend(agg.MonthlyTrends, TrendSeries)
	if err != nil {
		return fmt.Errorf("create trend chart: %w", err)
	}
	r.trend = h
	r.live++
	return nil
}

// Close disposes every live chart.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeLocked()
}

// Live reports how many chart instances are currently alive.
func (r *Renderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Renderer) disposeLocked() {
	for _, h := range []*Handle{&r.distribution, &r.trend} {
		if *h != nil {
			(*h).Dispose()
			*h = nil
			r.live--
		}
	}
}

// PageWriter writes the currently live charts as a standalone page.
type PageWriter interface {
	WritePage(w io.Writer) error
}
