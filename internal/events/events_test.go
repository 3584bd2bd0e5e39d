package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"air-pollution-dashboard/internal/modules/risk/estimator"
	"air-pollution-dashboard/internal/modules/risk/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishAssessment(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, discardLogger())

	a := estimator.Estimate(types.Reading{PM25: 5, Location: "Accra"})
	a.ID = "abc"
	a.CreatedAt = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := p.PublishAssessment(context.Background(), a); err != nil {
		t.Fatalf("PublishAssessment: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "Accra" {
		t.Errorf("key = %q, want Accra", msg.Key)
	}
	if !msg.Time.Equal(a.CreatedAt) {
		t.Errorf("time = %v, want %v", msg.Time, a.CreatedAt)
	}

	var ev AssessmentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.SchemaVersion != SchemaVersion || ev.EventID != "abc" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Assessment.RiskLevel != types.RiskLow || ev.Assessment.Source != types.SourceFallback {
		t.Errorf("assessment = %+v", ev.Assessment)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["source"] != "fallback" || headers["schema_version"] != SchemaVersion {
		t.Errorf("headers = %v", headers)
	}
}

func TestPublishAssessment_errors(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, discardLogger())

	if err := p.PublishAssessment(context.Background(), types.RiskAssessment{}); err == nil {
		t.Error("missing id: expected error")
	}
	err := p.PublishAssessment(context.Background(), types.RiskAssessment{ID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestNewKafkaPublisher_validation(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "t", nil); err == nil {
		t.Error("no brokers: expected error")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, " ", nil); err == nil {
		t.Error("empty topic: expected error")
	}
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "risk-assessments", nil)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	if err := newKafkaPublisher(w, discardLogger()).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.PublishAssessment(context.Background(), types.RiskAssessment{}); err != nil {
		t.Errorf("PublishAssessment: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
