package charts

import (
	"errors"
	"io"
	"sync"

	gocharts "github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"air-pollution-dashboard/internal/modules/risk/types"
)

var ErrNothingRendered = errors.New("no charts rendered")

// EChartsSurface keeps the data of the live charts and builds fresh
// go-echarts instances for every page it writes.
type EChartsSurface struct {
	mu   sync.Mutex
	pie  *pieSpec
	line *lineSpec
}

type pieSpec struct {
	items []opts.PieData
}

type lineSpec struct {
	series  string
	periods []string
	values  []opts.LineData
}

func NewEChartsSurface() *EChartsSurface {
	return &EChartsSurface{}
}

func (s *EChartsSurface) Distribution(entries []types.DistributionEntry, colors []string) (Handle, error) {
	spec := &pieSpec{items: make([]opts.PieData, 0, len(entries))}
	for i, e := range entries {
		d := opts.PieData{Name: e.Label, Value: e.Percent}
		if len(colors) > 0 {
			d.ItemStyle = &opts.ItemStyle{Color: colors[i%len(colors)]}
		}
		spec.items = append(spec.items, d)
	}

	s.mu.Lock()
	s.pie = spec
	s.mu.Unlock()

	return handleFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pie == spec {
			s.pie = nil
		}
	}), nil
}

func (s *EChartsSurface) Trend(points []types.TrendPoint, series string) (Handle, error) {
	spec := &lineSpec{
		series:  series,
		periods: make([]string, 0, len(points)),
		values:  make([]opts.LineData, 0, len(points)),
	}
	for _, p := range points {
		spec.periods = append(spec.periods, p.Period)
		spec.values = append(spec.values, opts.LineData{Value: p.PM25})
	}

	s.mu.Lock()
	s.line = spec
	s.mu.Unlock()

	return handleFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.line == spec {
			s.line = nil
		}
	}), nil
}

// WritePage renders the live charts to w. Chart instances are not reused
// across pages: go-echarts appends the script assets again on every
// AddCharts call.
func (s *EChartsSurface) WritePage(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pie == nil && s.line == nil {
		return ErrNothingRendered
	}

	page := components.NewPage()
	page.PageTitle = "Air Pollution Dashboard"
	if s.pie != nil {
		page.AddCharts(s.pie.build())
	}
	if s.line != nil {
		page.AddCharts(s.line.build())
	}
	return page.Render(w)
}

func (p *pieSpec) build() *gocharts.Pie {
	pie := gocharts.NewPie()
	pie.SetGlobalOptions(
		gocharts.WithTitleOpts(opts.Title{Title: "Risk Distribution"}),
	)
	pie.AddSeries("Risk", p.items,
		gocharts.WithPieChartOpts(opts.PieChart{Radius: []string{"45%", "70%"}}),
	)
	return pie
}

func (l *lineSpec) build() *gocharts.Line {
	line := gocharts.NewLine()
	line.SetGlobalOptions(
		gocharts.WithTitleOpts(opts.Title{Title: "Monthly PM2.5 Trend"}),
	)
	line.SetXAxis(l.periods).AddSeries(l.series, l.values)
	return line
}

type handleFunc func()

func (f handleFunc) Dispose() { f() }
