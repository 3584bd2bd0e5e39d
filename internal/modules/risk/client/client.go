// Package client talks to the remote air-quality prediction API.
//
// Every failure, whatever its cause, wraps ErrUnavailable so callers can apply
// their per-endpoint fallback with a single errors.Is check. Requests are made
// exactly once; there is no retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"air-pollution-dashboard/internal/modules/risk/types"
)

var ErrUnavailable = errors.New("prediction service unavailable")

var (
	TagTransport   = goerr.NewTag("transport")
	TagStatus      = goerr.NewTag("status")
	TagApplication = goerr.NewTag("application")
	TagDecode      = goerr.NewTag("decode")
)

const maxBodyBytes = 1 << 20

// ConnectionStatus is the outcome of a health check as shown to the user.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "Connected"
	StatusAPIError     ConnectionStatus = "API Error"
	StatusDisconnected ConnectionStatus = "Disconnected"
)

type HealthResult struct {
	Status   ConnectionStatus
	Accuracy *float64
}

type ModelInfo struct {
	Name     string  `json:"name"`
	Accuracy float64 `json:"accuracy"`
}

// API is the set of remote operations the dashboard depends on.
type API interface {
	Health(ctx context.Context) (HealthResult, error)
	Dashboard(ctx context.Context) (types.DashboardAggregate, *float64, error)
	Model(ctx context.Context) (ModelInfo, error)
	Predict(ctx context.Context, r types.Reading) (types.RiskAssessment, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for baseURL (origin plus /api). A nil httpClient gets
// one with the given timeout.
func New(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type healthResponse struct {
	Status        string   `json:"status"`
	ModelAccuracy *float64 `json:"model_accuracy"`
}

// Health reports whether the service is up. A reachable service whose body
// status is not "healthy" yields StatusAPIError together with an error.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	var body healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &body); err != nil {
		return HealthResult{Status: StatusDisconnected}, err
	}
	if body.Status != "healthy" {
		return HealthResult{Status: StatusAPIError}, unavailable(
			errors.New("service not healthy"), goerr.T(TagApplication), "health check failed",
			goerr.V("status", body.Status),
		)
	}
	return HealthResult{Status: StatusConnected, Accuracy: body.ModelAccuracy}, nil
}

type dashboardResponse struct {
	Success   bool `json:"success"`
	Dashboard *struct {
		Summary *struct {
			ModelAccuracy *float64 `json:"model_accuracy"`
		} `json:"summary"`
		RiskDistribution *orderedDistribution `json:"risk_distribution"`
		MonthlyTrends    []types.TrendPoint   `json:"monthly_trends"`
	} `json:"dashboard"`
}

// Dashboard fetches the chart aggregate. The accuracy is non-nil only when
// the summary carries a non-zero model_accuracy. A missing risk_distribution
// is returned as nil so the renderer can substitute its default.
func (c *Client) Dashboard(ctx context.Context) (types.DashboardAggregate, *float64, error) {
	var body dashboardResponse
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, &body); err != nil {
		return types.DashboardAggregate{}, nil, err
	}
	if !body.Success {
		return types.DashboardAggregate{}, nil, unavailable(errors.New("success=false"), goerr.T(TagApplication), "dashboard request failed")
	}
	if body.Dashboard == nil {
		return types.DashboardAggregate{}, nil, unavailable(errors.New("dashboard missing"), goerr.T(TagDecode), "dashboard request failed")
	}

	agg := types.DashboardAggregate{MonthlyTrends: body.Dashboard.MonthlyTrends}
	if agg.MonthlyTrends == nil {
		agg.MonthlyTrends = []types.TrendPoint{}
	}
	if body.Dashboard.RiskDistribution != nil {
		agg.RiskDistribution = []types.DistributionEntry(*body.Dashboard.RiskDistribution)
	}

	var accuracy *float64
	if s := body.Dashboard.Summary; s != nil && s.ModelAccuracy != nil && *s.ModelAccuracy != 0 {
		accuracy = s.ModelAccuracy
	}
	return agg, accuracy, nil
}

type modelResponse struct {
	Success bool       `json:"success"`
	Model   *ModelInfo `json:"model"`
}

func (c *Client) Model(ctx context.Context) (ModelInfo, error) {
	var body modelResponse
	if err := c.do(ctx, http.MethodGet, "/model", nil, &body); err != nil {
		return ModelInfo{}, err
	}
	if !body.Success || body.Model == nil {
		return ModelInfo{}, unavailable(errors.New("model info missing"), goerr.T(TagApplication), "model request failed")
	}
	return *body.Model, nil
}

type predictResponse struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	Prediction      string                 `json:"prediction"`
	Confidence      float64                `json:"confidence"`
	AQI             *float64               `json:"aqi"`
	AQICategory     string                 `json:"aqi_category"`
	Probabilities   *types.Probabilities   `json:"probabilities"`
	Recommendations *types.Recommendations `json:"recommendations"`
}

// Predict submits r for assessment. An explicit success=false is reported as
// an application failure carrying the server message.
func (c *Client) Predict(ctx context.Context, r types.Reading) (types.RiskAssessment, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return types.RiskAssessment{}, goerr.Wrap(err, "marshal reading")
	}

	var body predictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", payload, &body); err != nil {
		return types.RiskAssessment{}, err
	}
	if !body.Success {
		msg := body.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return types.RiskAssessment{}, unavailable(errors.New(msg), goerr.T(TagApplication), "prediction rejected",
			goerr.V("message", msg))
	}
	if body.AQI == nil || body.Prediction == "" {
		return types.RiskAssessment{}, unavailable(errors.New("incomplete prediction"), goerr.T(TagDecode), "prediction response malformed")
	}

	out := types.RiskAssessment{
		Source:          types.SourceRemote,
		Reading:         r,
		RiskLevel:       types.RiskLevel(body.Prediction),
		Confidence:      body.Confidence,
		AQI:             *body.AQI,
		AQICategory:     body.AQICategory,
		Recommendations: body.Recommendations,
	}
	if body.Probabilities != nil {
		out.Probabilities = *body.Probabilities
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return unavailable(err, goerr.T(TagTransport), "build request", goerr.V("url", url))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err, goerr.T(TagTransport), "request failed", goerr.V("method", method), goerr.V("url", url))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return unavailable(fmt.Errorf("HTTP %d", resp.StatusCode), goerr.T(TagStatus), "unexpected status",
			goerr.V("url", url), goerr.V("status", resp.StatusCode))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return unavailable(err, goerr.T(TagDecode), "decode response", goerr.V("url", url))
	}
	return nil
}

func unavailable(cause error, tag goerr.Option, msg string, opts ...goerr.Option) error {
	opts = append(opts, tag)
	return goerr.Wrap(fmt.Errorf("%w: %w", ErrUnavailable, cause), msg, opts...)
}

// Kind names the failure class of err: transport, status, application or
// decode. It returns "" for errors not produced by this package.
func Kind(err error) string {
	switch {
	case goerr.HasTag(err, TagTransport):
		return "transport"
	case goerr.HasTag(err, TagStatus):
		return "status"
	case goerr.HasTag(err, TagApplication):
		return "application"
	case goerr.HasTag(err, TagDecode):
		return "decode"
	default:
		return ""
	}
}
