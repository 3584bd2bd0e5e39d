// Package repository stores assessment history and the most recent station
// telemetry in SQLite.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"air-pollution-dashboard/internal/modules/risk/types"
)

//go:embed sql/insert-assessment.sql
var insertAssessmentSQL string

//go:embed sql/list-assessments.sql
var listAssessmentsSQL string

//go:embed sql/upsert-telemetry.sql
var upsertTelemetrySQL string

//go:embed sql/get-latest-telemetry.sql
var getLatestTelemetrySQL string

const MaxListLimit = 500

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type RiskRepository interface {
	InsertAssessment(ctx context.Context, a types.RiskAssessment) error
	ListAssessments(ctx context.Context, limit int) ([]types.RiskAssessment, error)
	UpsertTelemetry(ctx context.Context, t types.Telemetry) error
	// LatestTelemetry returns nil when no station has reported yet.
	LatestTelemetry(ctx context.Context) (*types.Telemetry, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) RiskRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertAssessment(ctx context.Context, a types.RiskAssessment) error {
	if a.ID == "" {
		return errors.New("assessment id is empty")
	}
	if a.CreatedAt.IsZero() {
		return errors.New("assessment created_at is zero")
	}

	var recs any
	if a.Recommendations != nil {
		b, err := json.Marshal(a.Recommendations)
		if err != nil {
			return fmt.Errorf("marshal recommendations: %w", err)
		}
		recs = string(b)
	}

	rd := a.Reading
	_, err := r.db.ExecContext(ctx, insertAssessmentSQL,
		a.ID, a.CreatedAt.UTC().Format(tsLayout), string(a.Source), rd.Location,
		rd.PM25, rd.PM10, rd.NO2, rd.SO2, rd.CO, rd.O3, rd.Temperature, rd.Humidity,
		string(a.RiskLevel), a.Confidence, a.AQI, a.AQICategory,
		nullable(a.Probabilities.Low), nullable(a.Probabilities.Moderate), nullable(a.Probabilities.High),
		recs,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// ListAssessments returns the newest assessments first. limit is clamped to
// [1, MaxListLimit].
func (r *repositoryImpl) ListAssessments(ctx context.Context, limit int) ([]types.RiskAssessment, error) {
	limit = max(1, min(limit, MaxListLimit))

	rows, err := r.db.QueryContext(ctx, listAssessmentsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close assessment rows", "error", err)
		}
	}()

	out := []types.RiskAssessment{}
	for rows.Next() {
		var (
			a                      types.RiskAssessment
			createdAt, source, lvl string
			low, moderate, high    sql.NullFloat64
			recs                   sql.NullString
		)
		rd := &a.Reading
		if err := rows.Scan(
			&a.ID, &createdAt, &source, &rd.Location,
			&rd.PM25, &rd.PM10, &rd.NO2, &rd.SO2, &rd.CO, &rd.O3, &rd.Temperature, &rd.Humidity,
			&lvl, &a.Confidence, &a.AQI, &a.AQICategory,
			&low, &moderate, &high, &recs,
		); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		a.Source = types.Source(source)
		a.RiskLevel = types.RiskLevel(lvl)
		a.Probabilities = types.Probabilities{Low: ptr(low), Moderate: ptr(moderate), High: ptr(high)}
		if recs.Valid {
			a.Recommendations = &types.Recommendations{}
			if err := json.Unmarshal([]byte(recs.String), a.Recommendations); err != nil {
				return nil, fmt.Errorf("decode recommendations for %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertTelemetry keeps one row per station. Older timestamps never replace
// newer ones.
func (r *repositoryImpl) UpsertTelemetry(ctx context.Context, t types.Telemetry) error {
	if t.StationID == "" {
		return errors.New("station_id is empty")
	}
	if t.Humidity != nil && (*t.Humidity < 0 || *t.Humidity > 100) {
		return fmt.Errorf("humidity_pct out of range: %f (must be 0-100)", *t.Humidity)
	}
	_, err := r.db.ExecContext(ctx, upsertTelemetrySQL,
		t.StationID, t.Timestamp.UTC().Format(tsLayout),
		nullable(t.PM25), nullable(t.PM10), nullable(t.NO2), nullable(t.SO2),
		nullable(t.CO), nullable(t.O3), nullable(t.Temperature), nullable(t.Humidity),
	)
	if err != nil {
		return fmt.Errorf("upsert telemetry: %w", err)
	}
	return nil
}

func (r *repositoryImpl) LatestTelemetry(ctx context.Context) (*types.Telemetry, error) {
	var (
		t  types.Telemetry
		ts string
		v  [8]sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, getLatestTelemetrySQL).Scan(
		&t.StationID, &ts, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6], &v[7],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	t.PM25, t.PM10, t.NO2, t.SO2 = ptr(v[0]), ptr(v[1]), ptr(v[2]), ptr(v[3])
	t.CO, t.O3, t.Temperature, t.Humidity = ptr(v[4]), ptr(v[5]), ptr(v[6]), ptr(v[7])
	return &t, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
	}
	return t, nil
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
