package risk

import (
	"context"
	"log/slog"

	"air-pollution-dashboard/internal/modules/risk/types"
	"air-pollution-dashboard/internal/mqtt"
)

// TelemetrySink receives station readings.
type TelemetrySink interface {
	HandleTelemetry(ctx context.Context, t types.Telemetry) error
}

// MQTTSubscriber is the part of mqtt.Subscriber used to attach the handler.
type MQTTSubscriber interface {
	SetHandler(h mqtt.TelemetryHandler)
}

// RegisterMQTTHandler routes station telemetry into sink. Set it before
// connecting so the first retained messages are not lost.
func RegisterMQTTHandler(subscriber MQTTSubscriber, sink TelemetrySink, logger *slog.Logger) {
	subscriber.SetHandler(func(ctx context.Context, t types.Telemetry) error {
		logger.Debug("processing telemetry message",
			"station_id", t.StationID,
			"timestamp", t.Timestamp,
		)
		if err := sink.HandleTelemetry(ctx, t); err != nil {
			logger.Error("failed to apply telemetry",
				"station_id", t.StationID,
				"error", err,
			)
			return err
		}
		logger.Debug("telemetry applied", "station_id", t.StationID)
		return nil
	})
}
