// Package knowledge implements Bayesian Knowledge Tracing: a per-skill
// probability that the learner has internalized the skill, updated after
// every observed answer.
//
// A Tracer is not safe for concurrent use. Callers serialize updates per
// learner (see services.LearnerModelService).
package knowledge

import (
	"math"
	"sort"
	"time"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

const (
	DefaultPInit       = 0.1
	DefaultPTransition = 0.3
	DefaultPCorrect    = 0.95
	DefaultPGuess      = 0.2

	// MasteryThreshold is the pKnown above which a skill counts as mastered.
	MasteryThreshold = 0.85
	// StrugglingThreshold is the pKnown below which a repeatedly attempted skill counts as struggling.
	StrugglingThreshold = 0.3

	masteryMinAttempts      = 3
	interventionMinAttempts = 5
	prereqMinAttempts       = 2
	strugglingMinAttempts   = 5
	practicingMinAttempts   = 3
	confidenceAttemptScale  = 10.0
	maxConfidence           = 0.95
	unknownSkillDays        = 7
)

type Action string

const (
	ActionMaster       Action = "master"
	ActionPractice     Action = "practice"
	ActionPrereq       Action = "prereq"
	ActionIntervention Action = "intervention"
)

// Params are the four BKT parameters. Slip is 1-PCorrect.
type Params struct {
	PInit       float64 `json:"pInit" yaml:"p_init"`
	PTransition float64 `json:"pTransition" yaml:"p_transition"`
	PCorrect    float64 `json:"pCorrect" yaml:"p_correct"`
	PGuess      float64 `json:"pGuess" yaml:"p_guess"`
}

func DefaultParams() Params {
	return Params{
		PInit:       DefaultPInit,
		PTransition: DefaultPTransition,
		PCorrect:    DefaultPCorrect,
		PGuess:      DefaultPGuess,
	}
}

func (p Params) clamped() Params {
	return Params{
		PInit:       clamp01(p.PInit),
		PTransition: clamp01(p.PTransition),
		PCorrect:    clamp01(p.PCorrect),
		PGuess:      clamp01(p.PGuess),
	}
}

// SkillParams overrides individual defaults when a skill is initialized.
// Nil fields fall back to the tracer defaults.
type SkillParams struct {
	PInit       *float64 `json:"pInit,omitempty" validate:"omitempty,gte=0,lte=1"`
	PTransition *float64 `json:"pTransition,omitempty" validate:"omitempty,gte=0,lte=1"`
	PCorrect    *float64 `json:"pCorrect,omitempty" validate:"omitempty,gte=0,lte=1"`
	PGuess      *float64 `json:"pGuess,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SkillState is the mastery record for one skill.
type SkillState struct {
	SkillID      string    `json:"skillId" validate:"required"`
	PInit        float64   `json:"pInit" validate:"gte=0,lte=1"`
	PTransition  float64   `json:"pTransition" validate:"gte=0,lte=1"`
	PCorrect     float64   `json:"pCorrect" validate:"gte=0,lte=1"`
	PGuess       float64   `json:"pGuess" validate:"gte=0,lte=1"`
	PKnown       float64   `json:"pKnown" validate:"gte=0,lte=1"`
	Attempts     int       `json:"attempts" validate:"gte=0"`
	CorrectCount int       `json:"correctCount" validate:"gte=0,ltefield=Attempts"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

func (s *SkillState) predictCorrect() float64 {
	return clamp01(s.PKnown*s.PCorrect + (1-s.PKnown)*s.PGuess)
}

type TraceResult struct {
	SkillID                  string  `json:"skillId"`
	PreviousKnowledge        float64 `json:"previousKnowledge"`
	UpdatedKnowledge         float64 `json:"updatedKnowledge"`
	Confidence               float64 `json:"confidence"`
	PredictedNextCorrectProb float64 `json:"predictedNextCorrectProb"`
	RecommendedAction        Action  `json:"recommendedAction"`
}

type Response struct {
	SkillID   string `json:"skillId" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type GlobalStatistics struct {
	TotalSkillsTracked int     `json:"totalSkillsTracked"`
	AverageMastery     float64 `json:"averageMastery"`
	MasteredCount      int     `json:"masteredCount"`
	StrugglingCount    int     `json:"strugglingCount"`
	TotalAttempts      int     `json:"totalAttempts"`
}

type Progression struct {
	Attempts          int     `json:"attempts"`
	PKnown            float64 `json:"pKnown"`
	MasteryPercentage int     `json:"masteryPercentage"`
}

type SkillSummary struct {
	SkillID  string `json:"skillId"`
	Mastery  int    `json:"mastery"`
	Attempts int    `json:"attempts"`
	Status   string `json:"status"`
}

type Option func(*Tracer)

func WithDefaults(p Params) Option {
	return func(t *Tracer) { t.defaults = p.clamped() }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(t *Tracer) { t.log = log.With("component", "KnowledgeTracer") }
}

type Tracer struct {
	states   map[string]*SkillState
	defaults Params
	now      func() time.Time
	log      *logger.Logger
}

func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{
		states:   map[string]*SkillState{},
		defaults: DefaultParams(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracer) Defaults() Params { return t.defaults }

// InitializeSkill creates (or recreates) the record for skillID. Re-initializing
// an existing skill discards its history and resets pKnown to pInit.
func (t *Tracer) InitializeSkill(skillID string, params *SkillParams) SkillState {
	p := t.defaults
	if params != nil {
		if params.PInit != nil {
			p.PInit = *params.PInit
		}
		if params.PTransition != nil {
			p.PTransition = *params.PTransition
		}
		if params.PCorrect != nil {
			p.PCorrect = *params.PCorrect
		}
		if params.PGuess != nil {
			p.PGuess = *params.PGuess
		}
	}
	p = p.clamped()
	st := &SkillState{
		SkillID:     skillID,
		PInit:       p.PInit,
		PTransition: p.PTransition,
		PCorrect:    p.PCorrect,
		PGuess:      p.PGuess,
		PKnown:      p.PInit,
		LastUpdated: t.now(),
	}
	t.states[skillID] = st
	return *st
}

// UpdateKnowledge folds one observed answer into the skill's mastery estimate.
//
// The learning transition is applied after the Bayes step whether or not the
// answer was correct: every attempt is an opportunity to learn, so a wrong
// answer can still raise pKnown.
func (t *Tracer) UpdateKnowledge(skillID string, isCorrect bool) TraceResult {
	st, ok := t.states[skillID]
	if !ok {
		t.InitializeSkill(skillID, nil)
		st = t.states[skillID]
	}
	prev := st.PKnown

	likeKnow, likeNotKnow := st.PCorrect, st.PGuess
	if !isCorrect {
		likeKnow, likeNotKnow = 1-st.PCorrect, 1-st.PGuess
	}
	posterior := bayesUpdate(st.PKnown, likeKnow, likeNotKnow)
	st.PKnown = clamp01(posterior + (1-posterior)*st.PTransition)

	st.Attempts++
	if isCorrect {
		st.CorrectCount++
	}
	st.LastUpdated = t.now()

	res := TraceResult{
		SkillID:                  skillID,
		PreviousKnowledge:        prev,
		UpdatedKnowledge:         st.PKnown,
		Confidence:               confidenceFor(st.Attempts),
		PredictedNextCorrectProb: st.predictCorrect(),
		RecommendedAction:        recommend(st.PKnown, st.Attempts, isCorrect),
	}
	t.log.Debug("knowledge updated",
		"skill_id", skillID,
		"correct", isCorrect,
		"previous", prev,
		"updated", st.PKnown,
		"action", res.RecommendedAction,
	)
	return res
}

// BatchUpdate applies responses in order; each update sees the previous ones.
func (t *Tracer) BatchUpdate(responses []Response) []TraceResult {
	out := make([]TraceResult, 0, len(responses))
	for _, r := range responses {
		out = append(out, t.UpdateKnowledge(r.SkillID, r.IsCorrect))
	}
	return out
}

func (t *Tracer) PredictNextAttempt(skillID string) float64 {
	st, ok := t.states[skillID]
	if !ok {
		return t.defaults.PGuess
	}
	return st.predictCorrect()
}

// EstimateTimeToMastery returns the estimated number of days until pKnown
// crosses MasteryThreshold at attemptsPerDay practice attempts per day.
func (t *Tracer) EstimateTimeToMastery(skillID string, attemptsPerDay int) int {
	st, ok := t.states[skillID]
	if !ok {
		return unknownSkillDays
	}
	if st.PKnown > MasteryThreshold {
		return 0
	}
	if attemptsPerDay < 1 {
		attemptsPerDay = 1
	}
	if st.PTransition <= 0 {
		// No learning ever happens; report the largest representable horizon.
		return math.MaxInt32
	}
	attempts := math.Ceil((MasteryThreshold - st.PKnown) / st.PTransition)
	days := int(math.Ceil(attempts / float64(attemptsPerDay)))
	if days < 1 {
		days = 1
	}
	return days
}

// State returns a copy of the skill record.
func (t *Tracer) State(skillID string) (SkillState, bool) {
	st, ok := t.states[skillID]
	if !ok {
		return SkillState{}, false
	}
	return *st, true
}

// Mastery returns pKnown for skillID, or the default pInit for an unseen skill.
func (t *Tracer) Mastery(skillID string) float64 {
	if st, ok := t.states[skillID]; ok {
		return st.PKnown
	}
	return t.defaults.PInit
}

func (t *Tracer) Progression(skillID string) Progression {
	st, ok := t.states[skillID]
	if !ok {
		return Progression{}
	}
	return Progression{
		Attempts:          st.Attempts,
		PKnown:            st.PKnown,
		MasteryPercentage: int(math.Round(st.PKnown * 100)),
	}
}

// AllStates returns a dashboard view of every tracked skill, sorted by skill id.
func (t *Tracer) AllStates() []SkillSummary {
	out := make([]SkillSummary, 0, len(t.states))
	for id, st := range t.states {
		status := "Learning"
		switch {
		case st.PKnown > MasteryThreshold:
			status = "Mastered"
		case isStruggling(st):
			status = "Struggling"
		case st.Attempts > practicingMinAttempts:
			status = "Practicing"
		}
		out = append(out, SkillSummary{
			SkillID:  id,
			Mastery:  int(math.Round(st.PKnown * 100)),
			Attempts: st.Attempts,
			Status:   status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out
}

func (t *Tracer) GlobalStatistics() GlobalStatistics {
	if len(t.states) == 0 {
		return GlobalStatistics{}
	}
	var stats GlobalStatistics
	sum := 0.0
	for _, st := range t.states {
		sum += st.PKnown
		if st.PKnown > MasteryThreshold {
			stats.MasteredCount++
		}
		if isStruggling(st) {
			stats.StrugglingCount++
		}
		stats.TotalAttempts += st.Attempts
	}
	stats.TotalSkillsTracked = len(t.states)
	stats.AverageMastery = sum / float64(len(t.states))
	return stats
}

// ResetSkill puts a tracked skill back at its prior. Unknown skills are ignored.
func (t *Tracer) ResetSkill(skillID string) bool {
	st, ok := t.states[skillID]
	if !ok {
		return false
	}
	st.PKnown = st.PInit
	st.Attempts = 0
	st.CorrectCount = 0
	st.LastUpdated = t.now()
	return true
}

func (t *Tracer) Clear() {
	t.states = map[string]*SkillState{}
}

func (t *Tracer) Len() int { return len(t.states) }

func bayesUpdate(prior, likeKnow, likeNotKnow float64) float64 {
	num := likeKnow * prior
	denom := num + likeNotKnow*(1-prior)
	if denom == 0 {
		return prior
	}
	return clamp01(num / denom)
}

func recommend(pKnown float64, attempts int, lastCorrect bool) Action {
	switch {
	case pKnown > MasteryThreshold && attempts >= masteryMinAttempts:
		return ActionMaster
	case attempts > interventionMinAttempts && !lastCorrect:
		return ActionIntervention
	case attempts >= prereqMinAttempts && pKnown < StrugglingThreshold:
		return ActionPrereq
	default:
		return ActionPractice
	}
}

func isStruggling(st *SkillState) bool {
	return st.Attempts > strugglingMinAttempts && st.PKnown < StrugglingThreshold
}

func confidenceFor(attempts int) float64 {
	return math.Min(float64(attempts)/confidenceAttemptScale, maxConfidence)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
