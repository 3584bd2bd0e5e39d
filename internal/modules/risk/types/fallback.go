package types

// FallbackAccuracy is shown whenever the service cannot report model accuracy.
const FallbackAccuracy = 85.0

// FallbackRiskDistribution returns the distribution charted when none is available.
func FallbackRiskDistribution() []DistributionEntry {
	return []DistributionEntry{
		{Label: "Low", Percent: 48.8},
		{Label: "Moderate", Percent: 49.5},
		{Label: "High", Percent: 1.6},
	}
}

// FallbackDashboard returns the built-in aggregate used when the dashboard
// endpoint is unavailable.
func FallbackDashboard() DashboardAggregate {
	return DashboardAggregate{
		RiskDistribution: FallbackRiskDistribution(),
		MonthlyTrends: []TrendPoint{
			{Period: "Jan", PM25: 28},
			{Period: "Feb", PM25: 32},
			{Period: "Mar", PM25: 35},
			{Period: "Apr", PM25: 30},
			{Period: "May", PM25: 25},
			{Period: "Jun", PM25: 22},
			{Period: "Jul", PM25: 28},
			{Period: "Aug", PM25: 33},
			{Period: "Sep", PM25: 38},
			{Period: "Oct", PM25: 35},
			{Period: "Nov", PM25: 32},
		},
	}
}
