// Package forecast scores a learner feature snapshot into a calibrated
// performance forecast with a risk tier, ranked explanations and an
// intervention suggestion for at-risk learners.
//
// Scoring is a fixed heuristic ensemble: a weighted linear model averaged
// with three rule-based sub-models. Prediction holds no state; only the
// training buffer is shared, and it is guarded by the engine's mutex.
package forecast

import (
	"math"
	"sync"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"

	lowRiskFrom    = 70
	mediumRiskFrom = 50

	populationMean   = 60.0
	calibrationScale = 0.95
	maxConfidence    = 0.95
	baseMargin       = 5.0
)

type Factor struct {
	Factor      string  `json:"factor"`
	Impact      float64 `json:"impact"`
	Explanation string  `json:"explanation"`
}

type Prediction struct {
	PredictedScore          int       `json:"predictedScore"`
	Confidence              float64   `json:"confidence"`
	LowerBound              int       `json:"lowerBound"`
	UpperBound              int       `json:"upperBound"`
	RiskLevel               RiskLevel `json:"riskLevel"`
	RecommendedIntervention string    `json:"recommendedIntervention,omitempty"`
	ExplainableFactors      []Factor  `json:"explainableFactors"`
}

type Option func(*Engine)

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log.With("component", "ForecastEngine") }
}

func WithRetrainer(r Retrainer) Option {
	return func(e *Engine) {
		if r != nil {
			e.retrainer = r
		}
	}
}

type Engine struct {
	log       *logger.Logger
	retrainer Retrainer

	mu       sync.Mutex
	examples []TrainingExample
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.retrainer == nil {
		e.retrainer = logRetrainer{log: e.log}
	}
	return e
}

// PredictPerformance scores one feature snapshot. The result always
// satisfies 0 <= LowerBound <= PredictedScore <= UpperBound <= 100.
func (e *Engine) PredictPerformance(f Features) Prediction {
	norm := normalize(f)
	linear := linearScore(norm)
	ensemble := (treeScore(norm) + blendScore(norm) + boostScore(norm)) / 3
	score := clampScore(calibrate((linear + ensemble) / 2))

	margin := baseMargin + math.Max(f.ScoreVariance, 0)/5
	dataPoints := float64(f.TotalAttempts + f.SessionsCount + f.DaysActive)

	p := Prediction{
		PredictedScore:     int(math.Round(score)),
		Confidence:         math.Min(math.Max(dataPoints, 0)/100, maxConfidence),
		LowerBound:         int(math.Round(clampScore(score - margin))),
		UpperBound:         int(math.Round(clampScore(score + margin))),
		ExplainableFactors: explain(f, norm),
	}
	p.RiskLevel = riskFor(p.PredictedScore)
	if p.RiskLevel == RiskHigh {
		p.RecommendedIntervention = intervention(f)
	}
	return p
}

// BatchPredict scores each snapshot independently.
func (e *Engine) BatchPredict(list []Features) []Prediction {
	out := make([]Prediction, len(list))
	for i, f := range list {
		out[i] = e.PredictPerformance(f)
	}
	return out
}

// PredictSkillPerformance scores f for one subject and shifts the result for
// consistently strong or struggling learners. The tier is recomputed after
// the shift.
func (e *Engine) PredictSkillPerformance(f Features, skill string) Prediction {
	f.Subject = skill
	p := e.PredictPerformance(f)

	adjust := 0
	switch {
	case f.MasteredSkills > 5 && f.StrugglingSkills == 0:
		adjust = 5
	case f.StrugglingSkills > f.MasteredSkills:
		adjust = -10
	}
	if adjust == 0 {
		return p
	}

	p.PredictedScore = clampInt(p.PredictedScore + adjust)
	p.LowerBound = clampInt(p.LowerBound + adjust)
	p.UpperBound = clampInt(p.UpperBound + adjust)
	p.RiskLevel = riskFor(p.PredictedScore)
	p.RecommendedIntervention = ""
	if p.RiskLevel == RiskHigh {
		p.RecommendedIntervention = intervention(f)
	}
	return p
}

func linearScore(n normalized) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += n[w.feature] * w.w
	}
	return 50 + sum*50
}

func treeScore(n normalized) float64 {
	switch {
	case n[FeatureAverageKnowledgeState] < 0.3:
		return 40
	case n[FeatureStreakDays] > 0.5:
		return 75 + n[FeatureAverageScore]*10
	case n[FeatureSessionsCount] > 0.7:
		return 70
	default:
		return 60
	}
}

func blendScore(n normalized) float64 {
	knowledge := n[FeatureAverageKnowledgeState] * 100
	engagement := (n[FeatureStreakDays] + n[FeatureSessionsCount]) / 2 * 100
	consistency := (1 - n[FeatureScoreVariance]) * 100
	return knowledge*0.5 + engagement*0.3 + consistency*0.2
}

func boostScore(n normalized) float64 {
	score := 50.0
	if k := n[FeatureAverageKnowledgeState]; k > 0.7 {
		score += 15
	} else if k < 0.4 {
		score -= 15
	}
	if n[FeatureErrorRate] > 0.4 {
		score -= 10
	}
	if n[FeatureStreakDays] > 0.6 {
		score += 8
	}
	return math.Max(20, math.Min(100, score))
}

func calibrate(raw float64) float64 {
	return populationMean + (raw-populationMean)*calibrationScale
}

func riskFor(score int) RiskLevel {
	switch {
	case score >= lowRiskFrom:
		return RiskLow
	case score >= mediumRiskFrom:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
