package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"air-pollution-dashboard/internal/config"
	db "air-pollution-dashboard/internal/db"
	"air-pollution-dashboard/internal/events"
	httpapi "air-pollution-dashboard/internal/httpapi"
	"air-pollution-dashboard/internal/metrics"
	"air-pollution-dashboard/internal/migrate"
	risk "air-pollution-dashboard/internal/modules/risk"
	"air-pollution-dashboard/internal/modules/risk/charts"
	"air-pollution-dashboard/internal/modules/risk/client"
	"air-pollution-dashboard/internal/modules/risk/repository"
	"air-pollution-dashboard/internal/modules/risk/service"
	riskviews "air-pollution-dashboard/internal/modules/risk/views"
	"air-pollution-dashboard/internal/mqtt"
)

// Run serves the dashboard until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"apiBaseURL", cfg.APIBaseURL,
		"apiTimeout", cfg.APITimeout,
		"refreshSchedule", cfg.RefreshSchedule,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	logger.Info("database ready", "migrationsApplied", applied)

	if err := riskviews.LoadTemplates(); err != nil {
		return err
	}

	m := metrics.New()
	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("event publisher close", "error", err)
		}
	}()

	surface := charts.NewEChartsSurface()
	svc := service.New(service.Deps{
		API:        client.New(cfg.APIBaseURL, nil, cfg.APITimeout),
		Repository: repository.NewRepository(dbConn),
		Charts:     charts.NewRenderer(surface),
		ChartPage:  surface,
		Events:     publisher,
		Metrics:    m,
		Logger:     logger.With("component", "risk"),
	})
	if err := svc.PrimeFromTelemetry(ctx); err != nil {
		logger.Warn("telemetry prefill failed", "error", err)
	}

	mux := httpapi.NewMux(dbConn, cfg.StaticDir, m)
	risk.RegisterFeature(mux, svc, httpapi.APIMiddleware(cfg.CORSAllowedOrigins))

	// Set the MQTT handler before Connect so OnConnectHandler can subscribe
	// immediately; the broker may deliver retained messages right after CONNACK.
	var subscriber *mqtt.Subscriber
	if cfg.MQTTBroker != "" {
		subscriber = mqtt.NewSubscriber(cfg, logger, m)
		risk.RegisterMQTTHandler(subscriber, svc, logger.With("component", "telemetry"))

		// Short timeout so a missing broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	// Load-time calls run in the background; the page shows fallbacks until
	// they finish.
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, 3*cfg.APITimeout)
		defer cancel()
		if err := svc.Load(loadCtx); err != nil {
			logger.Warn("initial load interrupted", "error", err)
		}
	}()

	stopRefresh, err := svc.StartRefresh(ctx, cfg.RefreshSchedule, cfg.APITimeout)
	if err != nil {
		return err
	}
	defer stopRefresh()

	srv := httpapi.NewServer(cfg, mux, logger, m)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// newPublisher returns the Kafka publisher, or a no-op one when Kafka is not
// configured or cannot be set up.
func newPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		logger.Warn("kafka publisher disabled", "error", err)
		return events.Noop{}
	}
	return p
}
