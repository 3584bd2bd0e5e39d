// cmd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"air-pollution-dashboard/internal/app"
	"air-pollution-dashboard/internal/config"
	"air-pollution-dashboard/internal/logging"
	"air-pollution-dashboard/internal/modules/risk/input"
)

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg, version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(cfg, logger).Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func newCommand(cfg config.Config, logger *slog.Logger) *cli.Command {
	serve := func(ctx context.Context, _ *cli.Command) error {
		logger.Info("starting",
			"version", version,
			"env", cfg.AppEnv,
			"log_level", cfg.LogLevel.String(),
		)
		err := app.Run(ctx, cfg, logger)
		logger.Info("shutting down")
		return err
	}

	return &cli.Command{
		Name:    logging.AppName,
		Usage:   "Air pollution health risk dashboard",
		Version: version,
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the dashboard HTTP server",
				Action: serve,
			},
			cmdPredict(cfg, logger),
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return app.Migrate(ctx, cfg, logger)
				},
			},
		},
	}
}

func cmdPredict(cfg config.Config, logger *slog.Logger) *cli.Command {
	reading := input.Defaults()
	fields := map[string]*float64{
		"pm25":        &reading.PM25,
		"pm10":        &reading.PM10,
		"no2":         &reading.NO2,
		"so2":         &reading.SO2,
		"co":          &reading.CO,
		"o3":          &reading.O3,
		"temperature": &reading.Temperature,
		"humidity":    &reading.Humidity,
	}

	flags := make([]cli.Flag, 0, len(input.Sliders)+2)
	for _, s := range input.Sliders {
		flags = append(flags, &cli.FloatFlag{
			Name:        s.ID,
			Usage:       fmt.Sprintf("%s (%s)", s.Label, s.Unit),
			Value:       *fields[s.ID],
			Destination: fields[s.ID],
		})
	}
	flags = append(flags,
		&cli.StringFlag{
			Name:        "location",
			Usage:       "Location label sent with the reading",
			Destination: &reading.Location,
		},
		&cli.StringFlag{
			Name:        "api-url",
			Usage:       "Prediction API base URL",
			Value:       cfg.APIBaseURL,
			Destination: &cfg.APIBaseURL,
		},
	)

	return &cli.Command{
		Name:  "predict",
		Usage: "Assess one reading and print the result as JSON",
		Flags: flags,
		Action: func(ctx context.Context, _ *cli.Command) error {
			return app.Predict(ctx, cfg, logger, reading, os.Stdout)
		},
	}
}
