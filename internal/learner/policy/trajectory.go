package policy

import "math"

type Convergence string

const (
	ConvergenceInsufficient Convergence = "insufficient_data"
	ConvergenceDiverging    Convergence = "diverging"
	ConvergenceConverging   Convergence = "converging"
	ConvergenceConverged    Convergence = "converged"

	trajectoryWindow    = 20
	convergedTrendBand  = 0.02
	lowRewardThreshold  = 0.4
	highRewardThreshold = 0.8
	performanceTail     = 5
)

const (
	AdjustInsufficient = "Insufficient data"
	AdjustIncrease     = "Increase exploration to find better strategies"
	AdjustDecrease     = "Decrease exploration - good policy converged"
	AdjustAdequate     = "Current policy performing adequately"
)

type Trajectory struct {
	PolicyID              string      `json:"policyId"`
	SampleCount           int         `json:"sampleCount"`
	AverageReward         float64     `json:"averageReward"`
	Trend                 float64     `json:"trend"`
	Convergence           Convergence `json:"convergence"`
	RecommendedAdjustment string      `json:"recommendedAdjustment"`
}

// AnalyzeTrajectory compares the mean of the most recent rewards with the
// window before it. Windows shrink to half the history when fewer than 40
// rewards exist, so any history of two or more samples yields a trend.
func (e *Engine) AnalyzeTrajectory(policyID string) Trajectory {
	rewards := e.rewards[policyID]
	n := len(rewards)
	out := Trajectory{PolicyID: policyID, SampleCount: n}
	if n < 2 {
		if n == 1 {
			out.AverageReward = rewards[0]
		}
		out.Convergence = ConvergenceInsufficient
		out.RecommendedAdjustment = AdjustInsufficient
		return out
	}

	out.AverageReward = mean(rewards)
	w := trajectoryWindow
	if n/2 < w {
		w = n / 2
	}
	recent := rewards[n-w:]
	older := rewards[n-2*w : n-w]
	out.Trend = mean(recent) - mean(older)

	switch {
	case math.Abs(out.Trend) < convergedTrendBand:
		out.Convergence = ConvergenceConverged
	case out.Trend > 0:
		out.Convergence = ConvergenceConverging
	default:
		out.Convergence = ConvergenceDiverging
	}

	switch {
	case out.AverageReward < lowRewardThreshold:
		out.RecommendedAdjustment = AdjustIncrease
	case out.AverageReward > highRewardThreshold:
		out.RecommendedAdjustment = AdjustDecrease
	default:
		out.RecommendedAdjustment = AdjustAdequate
	}
	return out
}

type Performance struct {
	PolicyID      string  `json:"policyId"`
	SampleCount   int     `json:"sampleCount"`
	AverageReward float64 `json:"averageReward"`
	MaxReward     float64 `json:"maxReward"`
	MinReward     float64 `json:"minReward"`
	RecentTrend   float64 `json:"recentTrend"`
	Epsilon       float64 `json:"epsilon"`
	Version       int     `json:"version"`
}

// PolicyPerformance summarizes every registered policy in registration order.
// Policies without rewards report zero statistics.
func (e *Engine) PolicyPerformance() []Performance {
	out := make([]Performance, 0, len(e.order))
	for _, id := range e.order {
		p := e.policies[id]
		perf := Performance{PolicyID: id, Epsilon: p.Epsilon, Version: p.Version}
		rewards := e.rewards[id]
		if len(rewards) > 0 {
			perf.SampleCount = len(rewards)
			perf.AverageReward = mean(rewards)
			perf.MaxReward, perf.MinReward = rewards[0], rewards[0]
			for _, r := range rewards[1:] {
				perf.MaxReward = math.Max(perf.MaxReward, r)
				perf.MinReward = math.Min(perf.MinReward, r)
			}
			tail := rewards
			if len(tail) > performanceTail {
				tail = tail[len(tail)-performanceTail:]
			}
			perf.RecentTrend = mean(tail)
		}
		out = append(out, perf)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
