package scoring

// Session velocity bonuses and thresholds.
const (
	HighActionCountBonus      = 8
	HighEngagementBonus       = 5
	MinActionsForBonus        = 5
	MinSecondsPerPageForBonus = 30
)

// VelocityInput describes one session.
type VelocityInput struct {
	ActionCount            int
	SessionDurationSeconds int
	PageCount              int
}

// VelocityMetrics are the computed figures behind the bonus.
type VelocityMetrics struct {
	ActionsPerSession     int  `json:"actionsPerSession"`
	AverageSecondsPerPage int  `json:"averageSecondsPerPage"`
	HasHighActionCount    bool `json:"hasHighActionCount"`
	HasHighEngagement     bool `json:"hasHighEngagement"`
}

// VelocityResult is the session bonus and how it was reached.
type VelocityResult struct {
	TotalBonus int             `json:"totalBonus"`
	Metrics    VelocityMetrics `json:"metrics"`
}

// CalculateSessionVelocity rewards busy sessions and long dwell times.
func CalculateSessionVelocity(in VelocityInput) VelocityResult {
	avg := 0
	if in.PageCount > 0 {
		avg = roundHalfUp(float64(in.SessionDurationSeconds) / float64(in.PageCount))
	}

	res := VelocityResult{Metrics: VelocityMetrics{
		ActionsPerSession:     in.ActionCount,
		AverageSecondsPerPage: avg,
		HasHighActionCount:    in.ActionCount >= MinActionsForBonus,
		HasHighEngagement:     avg >= MinSecondsPerPageForBonus,
	}}
	if res.Metrics.HasHighActionCount {
		res.TotalBonus += HighActionCountBonus
	}
	if res.Metrics.HasHighEngagement {
		res.TotalBonus += HighEngagementBonus
	}
	return res
}
