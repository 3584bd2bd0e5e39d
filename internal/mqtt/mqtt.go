// Package mqtt subscribes to station telemetry published over MQTT.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"air-pollution-dashboard/internal/config"
	"air-pollution-dashboard/internal/metrics"
	"air-pollution-dashboard/internal/modules/risk/types"
)

var ErrStopped = errors.New("subscriber stopped")

// TelemetryHandler receives every telemetry message that passes validation.
type TelemetryHandler func(ctx context.Context, t types.Telemetry) error

type Subscriber struct {
	client  mqtt.Client
	topic   string
	broker  string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	connected bool
	handler   TelemetryHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Subscriber {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)
	s := &Subscriber{
		topic:   cfg.MQTTTopic,
		broker:  broker,
		logger:  logger.With("component", "mqtt"),
		metrics: m,
		stopCh:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Resubscribe on every (re)connect since the session is clean.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", broker)
		if err := s.subscribe(c); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// SetHandler installs h. Set it before Connect so retained messages are not
// dropped.
func (s *Subscriber) SetHandler(h TelemetryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Connect waits for the first connection, honouring ctx and Disconnect.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.broker, err)
	}
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	const qos = byte(1)
	token := c.Subscribe(s.topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	var t types.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		s.metrics.Telemetry("malformed")
		s.logger.Warn("failed to parse telemetry message", "topic", topic, "error", err, "size", len(payload))
		return
	}
	if err := ValidateTelemetry(t); err != nil {
		s.metrics.Telemetry("invalid")
		s.logger.Warn("invalid telemetry message", "topic", topic, "station_id", t.StationID, "error", err)
		return
	}

	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		s.metrics.Telemetry("unhandled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h(ctx, t); err != nil {
		s.metrics.Telemetry("failed")
		s.logger.Error("telemetry handler failed", "topic", topic, "station_id", t.StationID, "error", err)
		return
	}
	s.metrics.Telemetry("stored")
	s.logger.Debug("processed telemetry message", "station_id", t.StationID, "timestamp", t.Timestamp)
}

// ValidateTelemetry checks the fields a station must send.
func ValidateTelemetry(t types.Telemetry) error {
	if t.StationID == "" {
		return errors.New("station_id is required")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if t.Humidity != nil && (*t.Humidity < 0 || *t.Humidity > 100) {
		return fmt.Errorf("humidity_pct out of range: %f (must be 0-100)", *t.Humidity)
	}

	concentrations := []struct {
		name string
		v    *float64
	}{
		{"pm25", t.PM25}, {"pm10", t.PM10}, {"no2", t.NO2},
		{"so2", t.SO2}, {"co", t.CO}, {"o3", t.O3},
	}
	present := t.Temperature != nil || t.Humidity != nil
	for _, c := range concentrations {
		if c.v == nil {
			continue
		}
		if *c.v < 0 {
			return fmt.Errorf("%s must not be negative: %f", c.name, *c.v)
		}
		present = true
	}
	if !present {
		return errors.New("at least one reading is required")
	}
	return nil
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber. It is safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
