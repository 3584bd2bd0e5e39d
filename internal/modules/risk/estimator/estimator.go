// Package estimator classifies a reading locally when the prediction service
// cannot be reached. Only PM2.5 is considered.
package estimator

import "air-pollution-dashboard/internal/modules/risk/types"

const (
	lowUpperPM25      = 12.0
	moderateUpperPM25 = 35.4
)

type profile struct {
	confidence      float64
	low             float64
	moderate        float64
	high            float64
	general         []string
	sensitiveGroups []string
	actions         []string
}

var profiles = map[types.RiskLevel]profile{
	types.RiskLow: {
		confidence:      95,
		low:             90,
		moderate:        8,
		high:            2,
		general:         []string{"Air quality is satisfactory", "Normal outdoor activities are safe"},
		sensitiveGroups: []string{"No special precautions needed"},
		actions:         []string{"Continue regular outdoor activities", "Maintain current pollution control measures"},
	},
	types.RiskModerate: {
		confidence:      90,
		low:             10,
		moderate:        85,
		high:            5,
		general:         []string{"Air quality is acceptable", "Unusually sensitive people should consider reducing prolonged outdoor exertion"},
		sensitiveGroups: []string{"Children, elderly, and people with respiratory conditions", "Consider reducing strenuous outdoor activities"},
		actions:         []string{"Reduce vehicle idling", "Limit outdoor burning", "Use public transportation when possible"},
	},
	types.RiskHigh: {
		confidence:      85,
		low:             5,
		moderate:        10,
		high:            90,
		general:         []string{"Air quality is unhealthy", "Everyone may begin to experience health effects"},
		sensitiveGroups: []string{"Avoid all outdoor activities", "Stay indoors with air purifiers if possible"},
		actions:         []string{"Issue public health advisory", "Implement traffic reduction measures", "Activate emergency pollution control protocols"},
	},
}

// Classify returns the risk level and approximate AQI for a PM2.5 value.
func Classify(pm25 float64) (types.RiskLevel, float64) {
	switch {
	case pm25 <= lowUpperPM25:
		return types.RiskLow, pm25 * (50.0 / 12.0)
	case pm25 <= moderateUpperPM25:
		return types.RiskModerate, 51 + (pm25-12.1)*(49.0/23.3)
	default:
		return types.RiskHigh, 101 + (pm25-35.5)*(49.0/19.9)
	}
}

// AQICategory maps an AQI value to its label. The thresholds do not line up
// exactly with the PM2.5 buckets in Classify.
func AQICategory(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	default:
		return "Unhealthy for Sensitive Groups"
	}
}

// Estimate builds a complete assessment for r without any network access.
func Estimate(r types.Reading) types.RiskAssessment {
	level, aqi := Classify(r.PM25)
	p := profiles[level]
	return types.RiskAssessment{
		Source:      types.SourceFallback,
		Reading:     r,
		RiskLevel:   level,
		Confidence:  p.confidence,
		AQI:         aqi,
		AQICategory: AQICategory(aqi),
		Probabilities: types.Probabilities{
			Low:      types.Float(p.low),
			Moderate: types.Float(p.moderate),
			High:     types.Float(p.high),
		},
		Recommendations: &types.Recommendations{
			General:         append([]string(nil), p.general...),
			SensitiveGroups: append([]string(nil), p.sensitiveGroups...),
			Actions:         append([]string(nil), p.actions...),
		},
	}
}
