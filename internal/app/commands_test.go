package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"air-pollution-dashboard/internal/config"
	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPredict_offlineFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	var out bytes.Buffer
	api := client.New(ts.URL+"/api", ts.Client(), time.Second)
	if err := predict(context.Background(), api, discardLogger(), types.Reading{PM25: 5}, &out); err != nil {
		t.Fatalf("predict: %v", err)
	}

	var got predictOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !got.Degraded || got.RiskText != "Low Risk" || got.Assessment.AQICategory != "Good" {
		t.Errorf("output = %+v", got)
	}
	if got.Assessment.ID == "" {
		t.Error("assessment has no id")
	}
}

func TestPredict_remote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predict" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"prediction":"High","confidence":91.5,"aqi":180,"aqi_category":"Unhealthy"}`)
	}))
	defer ts.Close()

	cfg := config.Config{APIBaseURL: ts.URL + "/api", APITimeout: time.Second}
	var out bytes.Buffer
	if err := Predict(context.Background(), cfg, discardLogger(), types.Reading{PM25: 90}, &out); err != nil {
		t.Fatalf("Predict: %v", err)
	}

	var got predictOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Degraded || got.RiskText != "High Risk" || got.Confidence != "91.5%" {
		t.Errorf("output = %+v", got)
	}
}

func TestMigrate(t *testing.T) {
	cfg := config.Config{
		SQLiteDriver:       "sqlite3",
		SQLitePath:         filepath.Join(t.TempDir(), "app.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
	}
	if err := Migrate(context.Background(), cfg, discardLogger()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Second run finds nothing to do.
	if err := Migrate(context.Background(), cfg, discardLogger()); err != nil {
		t.Fatalf("Migrate (again): %v", err)
	}
}

func TestNewPublisher_disabled(t *testing.T) {
	p := newPublisher(config.Config{}, discardLogger())
	if err := p.PublishAssessment(context.Background(), types.RiskAssessment{}); err != nil {
		t.Errorf("PublishAssessment = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
