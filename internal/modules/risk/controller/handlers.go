package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"air-pollution-dashboard/internal/modules/risk/charts"
	"air-pollution-dashboard/internal/modules/risk/input"
	"air-pollution-dashboard/internal/modules/risk/presenter"
	"air-pollution-dashboard/internal/modules/risk/types"
	"air-pollution-dashboard/internal/modules/risk/views"
	"air-pollution-dashboard/internal/utils"
)

// refreshTimeout bounds a manual refresh of the load-time calls.
const refreshTimeout = 60 * time.Second

func (c *riskControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := views.NewDashboardData(c.service.Snapshot())
	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid form")
		return
	}
	reading, err := input.Collect(r.PostForm)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.service.Predict(r.Context(), reading)

	data := views.NewDashboardData(c.service.Snapshot())
	data.BannerOOB = true
	var buf bytes.Buffer
	if err := views.RenderResultsPartial(&buf, &data); err != nil {
		slog.Error("results partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	if err := views.RenderBannerPartial(&buf, &data); err != nil {
		slog.Error("banner partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handleReset(w http.ResponseWriter, r *http.Request) {
	c.service.Reset()

	data := views.NewDashboardData(c.service.Snapshot())
	data.BannerOOB = true
	data.ResultsOOB = true
	var buf bytes.Buffer
	for _, render := range []func(io.Writer, *views.DashboardData) error{
		views.RenderFormPartial,
		views.RenderResultsPartial,
		views.RenderBannerPartial,
	} {
		if err := render(&buf, &data); err != nil {
			slog.Error("reset partial render failed", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to render")
			return
		}
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	if err := c.service.Load(ctx); err != nil {
		slog.Warn("refresh interrupted", "error", err)
	}

	data := views.NewDashboardData(c.service.Snapshot())
	data.BannerOOB = true
	data.ChartsOOB = true
	var buf bytes.Buffer
	for _, render := range []func(io.Writer, *views.DashboardData) error{
		views.RenderStatusPartial,
		views.RenderBannerPartial,
		views.RenderChartsPartial,
	} {
		if err := render(&buf, &data); err != nil {
			slog.Error("refresh partial render failed", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to render")
			return
		}
	}
	utils.WriteHTML(w, buf.Bytes())
}

// handleChartsPanel answers the charts panel poll. It returns 204, which HTMX
// does not swap, while the panel's revision is still current.
func (c *riskControllerImpl) handleChartsPanel(w http.ResponseWriter, r *http.Request) {
	data := views.NewDashboardData(c.service.Snapshot())
	if rev := r.URL.Query().Get("rev"); rev == strconv.FormatUint(data.ChartsRevision, 10) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var buf bytes.Buffer
	if err := views.RenderChartsPartial(&buf, &data); err != nil {
		slog.Error("charts partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handleDismissBanner(w http.ResponseWriter, r *http.Request) {
	c.service.DismissBanner()

	data := views.NewDashboardData(c.service.Snapshot())
	var buf bytes.Buffer
	if err := views.RenderBannerPartial(&buf, &data); err != nil {
		slog.Error("banner partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handleCharts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := c.service.WriteCharts(&buf); err != nil {
		if errors.Is(err, charts.ErrNothingRendered) {
			utils.WriteError(w, http.StatusServiceUnavailable, "charts not rendered yet")
			return
		}
		slog.Error("charts render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render charts")
		return
	}
	utils.WriteHTML(w, buf.Bytes())
}

func (c *riskControllerImpl) handleAssessments(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := c.service.History(r.Context(), limit)
	if err != nil {
		slog.Error("list assessments failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load assessments")
		return
	}
	utils.WriteJSON(w, http.StatusOK, history)
}

type predictResponse struct {
	Assessment types.RiskAssessment `json:"assessment"`
	View       presenter.ResultView `json:"view"`
	Degraded   bool                 `json:"degraded"`
	Reason     string               `json:"reason,omitempty"`
}

func (c *riskControllerImpl) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	reading, err := decodeReading(r.Body)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := c.service.Assess(r.Context(), reading)
	utils.WriteJSON(w, http.StatusOK, predictResponse{
		Assessment: out.Assessment,
		View:       presenter.Present(out.Assessment),
		Degraded:   out.Degraded,
		Reason:     out.Reason,
	})
}

type dashboardResponse struct {
	Status   string                   `json:"status"`
	Accuracy float64                  `json:"accuracy"`
	Source   string                   `json:"accuracy_source"`
	Data     types.DashboardAggregate `json:"data"`
}

func (c *riskControllerImpl) handleAPIDashboard(w http.ResponseWriter, r *http.Request) {
	snap := c.service.Snapshot()
	utils.WriteJSON(w, http.StatusOK, dashboardResponse{
		Status:   string(snap.Status),
		Accuracy: snap.Accuracy.Value,
		Source:   string(snap.Accuracy.Source),
		Data:     snap.Aggregate,
	})
}
