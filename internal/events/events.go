// Package events publishes completed risk assessments to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"air-pollution-dashboard/internal/modules/risk/types"
)

const SchemaVersion = "v1"

// AssessmentEvent is the message body written for every served assessment.
type AssessmentEvent struct {
	SchemaVersion string               `json:"schema_version"`
	EventID       string               `json:"event_id"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Assessment    types.RiskAssessment `json:"assessment"`
}

type Publisher interface {
	PublishAssessment(ctx context.Context, a types.RiskAssessment) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher returns a publisher writing to topic. Writes are
// asynchronous; delivery failures are logged.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("topic must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "assessment_publisher", "topic", topic)

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("assessment events not delivered", "count", len(msgs), "error", err)
			}
		},
	}
	return newKafkaPublisher(w, logger), nil
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

// PublishAssessment keys the message by location so a location's events stay
// ordered within a partition.
func (p *KafkaPublisher) PublishAssessment(ctx context.Context, a types.RiskAssessment) error {
	if a.ID == "" {
		return errors.New("assessment id is empty")
	}
	occurred := a.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	body, err := json.Marshal(AssessmentEvent{
		SchemaVersion: SchemaVersion,
		EventID:       a.ID,
		OccurredAt:    occurred,
		Assessment:    a,
	})
	if err != nil {
		return fmt.Errorf("marshal assessment event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(a.Reading.Location),
		Value: body,
		Time:  occurred,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(SchemaVersion)},
			{Key: "source", Value: []byte(a.Source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write assessment event: %w", err)
	}
	p.logger.Debug("assessment event queued", "id", a.ID, "source", a.Source)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishAssessment(context.Context, types.RiskAssessment) error { return nil }

func (Noop) Close() error { return nil }
