package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultAPIBaseURL = "https://air-pollution-api.onrender.com/api"

	// Requests served from the hosted dashboard always go to the hosted API.
	hostedDashboardHost = "air-pollution-app.onrender.com"
	hostedAPIBaseURL    = "https://air-pollution-api.onrender.com/api"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	APIBaseURL     string
	PublicHostname string
	APITimeout     time.Duration

	// RefreshSchedule is a cron spec for reloading the dashboard. Empty disables it.
	RefreshSchedule string

	// MQTTBroker is empty when telemetry ingestion is disabled.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// KafkaBrokers is empty when assessment events are disabled.
	KafkaBrokers []string
	KafkaTopic   string

	CORSAllowedOrigins []string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := envOr("STATIC_DIR", "static")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}

	apiBaseURL := envOr("API_BASE_URL", DefaultAPIBaseURL)
	if u, err := url.Parse(apiBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid API_BASE_URL %q (expected absolute URL)", apiBaseURL)
	}
	apiTimeout, err := envDuration("API_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	if apiTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid API_TIMEOUT %q (must be positive)", apiTimeout)
	}

	schedule, ok := os.LookupEnv("DASHBOARD_REFRESH_SCHEDULE")
	if !ok {
		schedule = "@every 5m"
	}
	schedule = strings.TrimSpace(schedule)
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return Config{}, fmt.Errorf("invalid DASHBOARD_REFRESH_SCHEDULE %q: %w", schedule, err)
		}
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", mqttPort)
	}

	kafkaBrokers := splitList(os.Getenv("KAFKA_BROKERS"))
	kafkaTopic := envOr("KAFKA_TOPIC", "risk-assessments")

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	hostname := strings.TrimSpace(os.Getenv("PUBLIC_HOSTNAME"))

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              envOr("HTTP_ADDR", ":8080"),
		StaticDir:             staticDir,
		SQLiteDriver:          envOr("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:            envOr("SQLITE_PATH", "data/app.db"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		APIBaseURL:            ResolveAPIBaseURL(apiBaseURL, hostname),
		PublicHostname:        hostname,
		APITimeout:            apiTimeout,
		RefreshSchedule:       schedule,
		MQTTBroker:            strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:              mqttPort,
		MQTTClientID:          envOr("MQTT_CLIENT_ID", "air-pollution-dashboard"),
		MQTTTopic:             envOr("MQTT_TOPIC", "air/telemetry/+"),
		KafkaBrokers:          kafkaBrokers,
		KafkaTopic:            kafkaTopic,
		CORSAllowedOrigins:    origins,
	}, nil
}

// ResolveAPIBaseURL applies the hosted-deployment override: when the
// dashboard is served from the hosted hostname the hosted API is used
// regardless of base.
func ResolveAPIBaseURL(base, hostname string) string {
	if strings.EqualFold(strings.TrimSpace(hostname), hostedDashboardHost) {
		return hostedAPIBaseURL
	}
	return strings.TrimRight(base, "/")
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
