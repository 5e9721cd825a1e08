package forecast

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
)

var validate = validator.New()

// Features is the learner snapshot a forecast is computed from. Counts and
// durations are raw; normalization happens inside the engine.
type Features struct {
	AverageScore  float64 `json:"averageScore" validate:"gte=0,lte=100"`
	RecentScore   float64 `json:"recentScore" validate:"gte=0,lte=100"`
	ScoreVariance float64 `json:"scoreVariance" validate:"gte=0"`
	TotalAttempts int     `json:"totalAttempts" validate:"gte=0"`

	MasteredSkills        int     `json:"masteredSkills" validate:"gte=0"`
	StrugglingSkills      int     `json:"strugglingSkills" validate:"gte=0"`
	AverageKnowledgeState float64 `json:"averageKnowledgeState" validate:"gte=0,lte=1"`

	DaysActive             int     `json:"daysActive" validate:"gte=0"`
	SessionsCount          int     `json:"sessionsCount" validate:"gte=0"`
	AverageSessionDuration float64 `json:"averageSessionDuration" validate:"gte=0"`
	StreakDays             int     `json:"streakDays" validate:"gte=0"`

	// TimeOfDayPreference is an hour of day.
	TimeOfDayPreference int     `json:"timeOfDayPreference" validate:"gte=0,lte=23"`
	AttentionSpan       float64 `json:"attentionSpan" validate:"gte=0"`
	ErrorRate           float64 `json:"errorRate" validate:"gte=0,lte=1"`

	Subject        string `json:"subject"`
	Difficulty     string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced expert"`
	EducationLevel string `json:"educationLevel"`

	DaysSinceLastAttempt float64 `json:"daysSinceLastAttempt" validate:"gte=0"`
	DaysSinceMastered    float64 `json:"daysSinceMastered" validate:"gte=0"`
}

// Validate reports out-of-range inputs. Prediction never requires it: the
// engine clamps every normalized value.
func (f Features) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: features: %v", pkgerrors.ErrInvalidArgument, err)
	}
	return nil
}

// Feature names as they appear in explanations.
const (
	FeatureAverageScore           = "averageScore"
	FeatureRecentScore            = "recentScore"
	FeatureScoreVariance          = "scoreVariance"
	FeatureTotalAttempts          = "totalAttempts"
	FeatureMasteredSkills         = "masteredSkills"
	FeatureStrugglingSkills       = "strugglingSkills"
	FeatureAverageKnowledgeState  = "averageKnowledgeState"
	FeatureDaysActive             = "daysActive"
	FeatureSessionsCount          = "sessionsCount"
	FeatureAverageSessionDuration = "averageSessionDuration"
	FeatureStreakDays             = "streakDays"
	FeatureErrorRate              = "errorRate"
	FeatureDaysSinceLastAttempt   = "daysSinceLastAttempt"
	FeatureDaysSinceMastered      = "daysSinceMastered"
	FeatureAttentionSpan          = "attentionSpan"
)

type weight struct {
	feature string
	w       float64
}

// weights is ordered; explanations with equal impact keep this order.
var weights = []weight{
	{FeatureAverageScore, 0.25},
	{FeatureRecentScore, 0.20},
	{FeatureScoreVariance, -0.08},
	{FeatureMasteredSkills, 0.15},
	{FeatureStrugglingSkills, -0.12},
	{FeatureAverageKnowledgeState, 0.18},
	{FeatureStreakDays, 0.10},
	{FeatureSessionsCount, 0.08},
	{FeatureAverageSessionDuration, 0.07},
	{FeatureDaysSinceLastAttempt, -0.05},
	{FeatureDaysSinceMastered, 0.03},
	{FeatureErrorRate, -0.12},
	{FeatureAttentionSpan, 0.06},
}

type normalized map[string]float64

func normalize(f Features) normalized {
	return normalized{
		FeatureAverageScore:           unit(f.AverageScore / 100),
		FeatureRecentScore:            unit(f.RecentScore / 100),
		FeatureScoreVariance:          unit(f.ScoreVariance / 25),
		FeatureTotalAttempts:          unit(float64(f.TotalAttempts) / 100),
		FeatureMasteredSkills:         unit(float64(f.MasteredSkills) / 20),
		FeatureStrugglingSkills:       unit(float64(f.StrugglingSkills) / 20),
		FeatureAverageKnowledgeState:  unit(f.AverageKnowledgeState),
		FeatureDaysActive:             unit(float64(f.DaysActive) / 365),
		FeatureSessionsCount:          unit(float64(f.SessionsCount) / 100),
		FeatureAverageSessionDuration: unit(f.AverageSessionDuration / 60),
		FeatureStreakDays:             unit(float64(f.StreakDays) / 30),
		FeatureErrorRate:              unit(f.ErrorRate),
		FeatureDaysSinceLastAttempt:   unit(1 - f.DaysSinceLastAttempt/30),
		FeatureDaysSinceMastered:      unit(1 - f.DaysSinceMastered/90),
		FeatureAttentionSpan:          unit(f.AttentionSpan / 60),
	}
}
