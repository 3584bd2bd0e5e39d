// Package presenter turns risk assessments into display-ready view models.
package presenter

import (
	"fmt"
	"strconv"

	"air-pollution-dashboard/internal/modules/risk/types"
)

const noData = "No data available"

// Accuracy colour tiers.
const (
	ColorHigh   = "#00ff88"
	ColorMedium = "#f9d423"
	ColorLow    = "#ff416c"
)

// ResultView is everything the results panel shows for one assessment.
type ResultView struct {
	RiskText    string
	StyleClass  string
	Confidence  string
	AQI         string
	AQICategory string

	ProbLow      string
	ProbModerate string
	ProbHigh     string

	General         []string
	SensitiveGroups []string
	Actions         []string

	Offline bool
}

// Present renders a. Remote and fallback assessments are treated the same;
// Offline is informational only.
func Present(a types.RiskAssessment) ResultView {
	v := ResultView{
		RiskText:     fmt.Sprintf("%s Risk", a.RiskLevel),
		StyleClass:   StyleClass(a.RiskLevel),
		Confidence:   strconv.FormatFloat(a.Confidence, 'f', -1, 64) + "%",
		AQI:          strconv.FormatFloat(a.AQI, 'f', 1, 64),
		AQICategory:  a.AQICategory,
		ProbLow:      percent(a.Probabilities.Low),
		ProbModerate: percent(a.Probabilities.Moderate),
		ProbHigh:     percent(a.Probabilities.High),
		Offline:      a.Source == types.SourceFallback,
	}

	if a.Recommendations == nil {
		v.General = []string{noData}
		v.SensitiveGroups = []string{noData}
		v.Actions = []string{noData}
		return v
	}
	v.General = list(a.Recommendations.General)
	v.SensitiveGroups = list(a.Recommendations.SensitiveGroups)
	v.Actions = list(a.Recommendations.Actions)
	return v
}

// StyleClass picks the CSS class for the risk indicator. Unknown levels are
// styled as high.
func StyleClass(level types.RiskLevel) string {
	switch level {
	case types.RiskLow:
		return "risk-low"
	case types.RiskModerate:
		return "risk-moderate"
	default:
		return "risk-high"
	}
}

func percent(p *float64) string {
	if p == nil || *p == 0 {
		return "0.0%"
	}
	return strconv.FormatFloat(*p, 'f', 1, 64) + "%"
}

func list(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	return out
}

// Display echoes the headline readings next to the result.
type Display struct {
	PM25 string
	PM10 string
	NO2  string
	SO2  string
}

func DisplayValues(r types.Reading) Display {
	return Display{
		PM25: oneDecimal(r.PM25),
		PM10: oneDecimal(r.PM10),
		NO2:  oneDecimal(r.NO2),
		SO2:  oneDecimal(r.SO2),
	}
}

func oneDecimal(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

// Accuracy is the model accuracy indicator.
type Accuracy struct {
	Text  string
	Color string
}

func AccuracyView(accuracy float64) Accuracy {
	color := ColorLow
	switch {
	case accuracy >= 90:
		color = ColorHigh
	case accuracy >= 80:
		color = ColorMedium
	}
	return Accuracy{Text: fmt.Sprintf("%.1f%%", accuracy), Color: color}
}
