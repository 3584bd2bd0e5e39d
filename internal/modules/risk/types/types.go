package types

import "time"

// Reading is one set of pollutant and weather values submitted for assessment.
type Reading struct {
	PM25        float64 `json:"pm25"`
	PM10        float64 `json:"pm10"`
	NO2         float64 `json:"no2"`
	SO2         float64 `json:"so2"`
	CO          float64 `json:"co"`
	O3          float64 `json:"o3"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Location    string  `json:"location"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// Source records where an assessment came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Probabilities holds per-bucket percentages. A nil field means the value was
// absent from the response.
type Probabilities struct {
	Low      *float64 `json:"low,omitempty"`
	Moderate *float64 `json:"moderate,omitempty"`
	High     *float64 `json:"high,omitempty"`
}

type Recommendations struct {
	General         []string `json:"general"`
	SensitiveGroups []string `json:"sensitive_groups"`
	Actions         []string `json:"actions"`
}

type RiskAssessment struct {
	ID              string           `json:"id,omitempty"`
	CreatedAt       time.Time        `json:"created_at,omitempty"`
	Source          Source           `json:"source"`
	Reading         Reading          `json:"reading"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Confidence      float64          `json:"confidence"`
	AQI             float64          `json:"aqi"`
	AQICategory     string           `json:"aqi_category"`
	Probabilities   Probabilities    `json:"probabilities"`
	Recommendations *Recommendations `json:"recommendations,omitempty"`
}

// DistributionEntry is one slice of the risk distribution chart.
type DistributionEntry struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

type TrendPoint struct {
	Period string  `json:"period"`
	PM25   float64 `json:"pm25"`
}

// DashboardAggregate feeds the two dashboard charts. It is replaced wholesale
// on every refresh.
type DashboardAggregate struct {
	RiskDistribution []DistributionEntry `json:"risk_distribution"`
	MonthlyTrends    []TrendPoint        `json:"monthly_trends"`
}

// Telemetry is a pollutant reading published by a monitoring station.
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	PM25        *float64  `json:"pm25,omitempty"`
	PM10        *float64  `json:"pm10,omitempty"`
	NO2         *float64  `json:"no2,omitempty"`
	SO2         *float64  `json:"so2,omitempty"`
	CO          *float64  `json:"co,omitempty"`
	O3          *float64  `json:"o3,omitempty"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
}

func Float(v float64) *float64 { return &v }
