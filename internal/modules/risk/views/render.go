// Package views renders the dashboard page and its HTMX fragments.
package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/input"
	"air-pollution-dashboard/internal/modules/risk/presenter"
	"air-pollution-dashboard/internal/modules/risk/state"
	"air-pollution-dashboard/internal/modules/risk/types"
)

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

var errNotLoaded = errors.New("dashboard template not loaded: call views.LoadTemplates during startup")

type SliderView struct {
	ID    string
	Label string
	Unit  string
	Min   string
	Max   string
	Step  string
	Value string
}

type StatusData struct {
	Connection string
	// StatusClass is connected, api-error or disconnected.
	StatusClass string
	Accuracy    presenter.Accuracy
	Busy        bool
}

type BannerData struct {
	Message string
	Kind    string
	// AutoDismissMS is zero for sticky banners.
	AutoDismissMS int64
}

type ResultsData struct {
	Visible bool
	Result  *presenter.ResultView
	Display presenter.Display
}

type DashboardData struct {
	Sliders []SliderView
	Status  StatusData
	Banner  *BannerData
	Results ResultsData
	// ChartsRevision versions the charts frame URL so the browser reloads it
	// after the aggregate changes.
	ChartsRevision uint64
	// BannerOOB, ResultsOOB and ChartsOOB mark fragments for an out-of-band
	// HTMX swap.
	BannerOOB  bool
	ResultsOOB bool
	ChartsOOB  bool
}

// NewDashboardData builds the page view model from a state snapshot.
func NewDashboardData(snap state.Snapshot) DashboardData {
	return DashboardData{
		Sliders:        sliderViews(snap.Reading),
		Status:         NewStatusData(snap),
		Banner:         NewBannerData(snap.Banner),
		Results:        NewResultsData(snap),
		ChartsRevision: snap.ChartsRevision,
	}
}

func NewStatusData(snap state.Snapshot) StatusData {
	return StatusData{
		Connection:  string(snap.Status),
		StatusClass: statusClass(snap.Status),
		Accuracy:    presenter.AccuracyView(snap.Accuracy.Value),
		Busy:        snap.Busy,
	}
}

func NewBannerData(b *state.Banner) *BannerData {
	if b == nil {
		return nil
	}
	return &BannerData{
		Message:       b.Message,
		Kind:          string(b.Kind),
		AutoDismissMS: b.AutoDismiss.Milliseconds(),
	}
}

func NewResultsData(snap state.Snapshot) ResultsData {
	d := ResultsData{
		Visible: snap.ResultsVisible && snap.Result != nil,
		Display: presenter.DisplayValues(snap.Reading),
	}
	if d.Visible {
		v := presenter.Present(*snap.Result)
		d.Result = &v
		d.Display = presenter.DisplayValues(snap.Result.Reading)
	}
	return d
}

func statusClass(s client.ConnectionStatus) string {
	switch s {
	case client.StatusConnected:
		return "connected"
	case client.StatusAPIError:
		return "api-error"
	case client.StatusDisconnected:
		return "disconnected"
	default:
		return "checking"
	}
}

func sliderViews(r types.Reading) []SliderView {
	out := make([]SliderView, 0, len(input.Sliders))
	for _, s := range input.Sliders {
		out = append(out, SliderView{
			ID:    s.ID,
			Label: s.Label,
			Unit:  s.Unit,
			Min:   formatNumber(s.Min),
			Max:   formatNumber(s.Max),
			Step:  formatNumber(s.Step),
			Value: formatNumber(input.Value(r, s.ID)),
		})
	}
	return out
}

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderResultsPartial executes only the results partial into w.
// Use for HTMX fragment refresh after a prediction or reset.
func RenderResultsPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/results.html", data)
}

// RenderStatusPartial executes the connection status and accuracy partial.
func RenderStatusPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/status.html", data)
}

// RenderFormPartial executes the slider form partial.
func RenderFormPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/form.html", data)
}

// RenderBannerPartial executes the banner partial. Set data.BannerOOB when the
// banner accompanies another fragment.
func RenderBannerPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/banner.html", data)
}

// RenderChartsPartial executes the charts panel partial. The panel polls for
// a newer revision; set data.ChartsOOB when it accompanies another fragment.
func RenderChartsPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/charts.html", data)
}
