package policy

import (
	"fmt"
	"math"
	"time"
)

type Bucket string

const (
	BucketLow  Bucket = "low"
	BucketMid  Bucket = "mid"
	BucketHigh Bucket = "high"

	lowProficiencyBelow = 0.33
	midProficiencyBelow = 0.67
)

// BucketFor discretizes a proficiency in [0,1].
func BucketFor(proficiency float64) Bucket {
	switch {
	case math.IsNaN(proficiency) || proficiency < lowProficiencyBelow:
		return BucketLow
	case proficiency < midProficiencyBelow:
		return BucketMid
	default:
		return BucketHigh
	}
}

// State is the discretized learner state. It is comparable and keys the
// Q-table directly.
type State struct {
	Proficiency   Bucket `json:"proficiency"`
	LearningStyle string `json:"learningStyle"`
	Motivation    string `json:"motivation"`
	TimeOfDay     string `json:"timeOfDay"`
}

func (s State) String() string {
	return fmt.Sprintf("{proficiency=%s style=%q motivation=%q time=%q}", s.Proficiency, s.LearningStyle, s.Motivation, s.TimeOfDay)
}

func (s State) less(o State) bool {
	if s.Proficiency != o.Proficiency {
		return s.Proficiency < o.Proficiency
	}
	if s.LearningStyle != o.LearningStyle {
		return s.LearningStyle < o.LearningStyle
	}
	if s.Motivation != o.Motivation {
		return s.Motivation < o.Motivation
	}
	return s.TimeOfDay < o.TimeOfDay
}

// Context is the learner context recorded alongside an action.
type Context struct {
	StudentProficiency float64 `json:"studentProficiency"`
	LearningStyle      string  `json:"learningStyle"`
	MotivationLevel    string  `json:"motivationLevel"`
	TimeOfDay          string  `json:"timeOfDay"`
}

func StateFor(c Context) State {
	return State{
		Proficiency:   BucketFor(c.StudentProficiency),
		LearningStyle: c.LearningStyle,
		Motivation:    c.MotivationLevel,
		TimeOfDay:     c.TimeOfDay,
	}
}

type ActionType string

const (
	ActionContent    ActionType = "content"
	ActionDifficulty ActionType = "difficulty"
	ActionStrategy   ActionType = "strategy"
	ActionTiming     ActionType = "timing"
)

type Response string

const (
	ResponsePositive Response = "positive"
	ResponseNeutral  Response = "neutral"
	ResponseNegative Response = "negative"
)

// LearningAction is one delivered instructional action and the learner's
// reaction to it.
type LearningAction struct {
	ActionID        string     `json:"actionId"`
	Type            ActionType `json:"type"`
	ContentID       string     `json:"contentId" validate:"required"`
	Reward          float64    `json:"reward"`
	StudentResponse Response   `json:"studentResponse" validate:"omitempty,oneof=positive neutral negative"`
	Context         Context    `json:"context"`
	Timestamp       time.Time  `json:"timestamp"`
}

// PolicyID maps the action type onto its decision domain. Types outside the
// four built-in ones are taken as policy ids verbatim.
func (a LearningAction) PolicyID() string {
	switch a.Type {
	case ActionContent:
		return ContentSelection
	case ActionDifficulty:
		return DifficultyProgression
	case ActionStrategy:
		return LearningStrategy
	case ActionTiming:
		return TimingOptimization
	default:
		return string(a.Type)
	}
}
