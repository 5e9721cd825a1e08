// Package policy selects instructional actions per decision domain with an
// epsilon-greedy Q-learning policy and folds observed outcomes back in with
// temporal-difference updates.
//
// An Engine is not safe for concurrent use.
package policy

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

const (
	ContentSelection      = "content_selection"
	DifficultyProgression = "difficulty_progression"
	LearningStrategy      = "learning_strategy"
	TimingOptimization    = "timing_optimization"

	NeutralQ = 0.5

	epsilonFloor       = 0.01
	epsilonDecayFactor = 0.99
	decayEveryRewards  = 100

	rewardPositive    = 0.8
	rewardNeutral     = 0.4
	rewardNegative    = -0.3
	implicitRewardMax = 0.2
)

// Policy holds one decision domain's hyperparameters.
type Policy struct {
	ID          string  `json:"policyId" validate:"required"`
	Description string  `json:"description"`
	StateSpace  string  `json:"stateSpace"`
	ActionSpace string  `json:"actionSpace"`
	Epsilon     float64 `json:"epsilon" validate:"gte=0,lte=1"`
	Alpha       float64 `json:"alpha" validate:"gt=0,lte=1"`
	Gamma       float64 `json:"gamma" validate:"gte=0,lte=1"`
	Version     int     `json:"version" validate:"gte=0"`
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:          ContentSelection,
			Description: "Optimizes which type of content to present",
			StateSpace:  "student proficiency, learning style, motivation",
			ActionSpace: "video, article, interactive, practice, gamified",
			Epsilon:     0.15,
			Alpha:       0.1,
			Gamma:       0.9,
			Version:     1,
		},
		{
			ID:          DifficultyProgression,
			Description: "Determines appropriate difficulty level",
			StateSpace:  "current mastery, recent performance, engagement",
			ActionSpace: "decrease, maintain, increase",
			Epsilon:     0.1,
			Alpha:       0.15,
			Gamma:       0.95,
			Version:     1,
		},
		{
			ID:          LearningStrategy,
			Description: "Selects optimal learning strategy",
			StateSpace:  "knowledge state, time available, learning pace",
			ActionSpace: "spaced_repetition, active_recall, interleaving, elaboration",
			Epsilon:     0.2,
			Alpha:       0.12,
			Gamma:       0.9,
			Version:     1,
		},
		{
			ID:          TimingOptimization,
			Description: "Optimizes when to present content",
			StateSpace:  "time of day, student availability, fatigue level",
			ActionSpace: "immediate, after_break, morning, afternoon, evening",
			Epsilon:     0.1,
			Alpha:       0.08,
			Gamma:       0.85,
			Version:     1,
		},
	}
}

// Tuning overrides a policy's hyperparameters. Nil fields are left alone.
type Tuning struct {
	Epsilon *float64 `json:"epsilon,omitempty" yaml:"epsilon"`
	Alpha   *float64 `json:"alpha,omitempty" yaml:"alpha"`
	Gamma   *float64 `json:"gamma,omitempty" yaml:"gamma"`
}

// Rand is the randomness the engine draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type Selection struct {
	RecommendedAction      string  `json:"recommendedAction"`
	ExpectedReward         float64 `json:"expectedReward"`
	ExplorationProbability float64 `json:"explorationProbability"`
	Exploration            bool    `json:"exploration"`
	Reasoning              string  `json:"reasoning"`
}

// Observation reports what ObserveReward did. Applied is false when the
// action's policy is not registered.
type Observation struct {
	PolicyID  string  `json:"policyId"`
	State     State   `json:"state"`
	Reward    float64 `json:"reward"`
	PreviousQ float64 `json:"previousQ"`
	UpdatedQ  float64 `json:"updatedQ"`
	Decayed   bool    `json:"decayed"`
	Applied   bool    `json:"applied"`
}

type qKey struct {
	policy string
	state  State
	action string
}

type Option func(*Engine)

func WithRand(r Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log.With("component", "PolicyEngine") }
}

// WithTuning applies per-policy overrides at construction. Unknown ids and
// out-of-range values are skipped with a warning.
func WithTuning(t map[string]Tuning) Option {
	return func(e *Engine) { e.pendingTuning = t }
}

type Engine struct {
	policies map[string]*Policy
	order    []string
	q        map[qKey]float64
	rewards  map[string][]float64

	// observed counts rewards across all policies. Decay fires on every
	// decayEveryRewards-th reward engine-wide and only touches the policy that
	// received that reward.
	observed int

	rng           Rand
	log           *logger.Logger
	pendingTuning map[string]Tuning
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies: map[string]*Policy{},
		q:        map[qKey]float64{},
		rewards:  map[string][]float64{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, p := range defaultPolicies() {
		p := p
		e.policies[p.ID] = &p
		e.order = append(e.order, p.ID)
	}
	for _, opt := range opts {
		opt(e)
	}
	for id, t := range e.pendingTuning {
		if err := e.Configure(id, t); err != nil {
			e.log.Warn("policy tuning skipped", "policy_id", id, "error", err)
		}
	}
	e.pendingTuning = nil
	return e
}

// Configure retunes a registered policy and bumps its version.
func (e *Engine) Configure(policyID string, t Tuning) error {
	p, ok := e.policies[policyID]
	if !ok {
		return fmt.Errorf("policy %q: %w", policyID, pkgerrors.ErrNotFound)
	}
	next := *p
	if t.Epsilon != nil {
		next.Epsilon = *t.Epsilon
	}
	if t.Alpha != nil {
		next.Alpha = *t.Alpha
	}
	if t.Gamma != nil {
		next.Gamma = *t.Gamma
	}
	if err := validate.Struct(next); err != nil {
		return fmt.Errorf("%w: policy %q: %v", pkgerrors.ErrInvalidArgument, policyID, err)
	}
	next.Version++
	*p = next
	return nil
}

// Policy returns a copy of the named policy.
func (e *Engine) Policy(policyID string) (Policy, bool) {
	p, ok := e.policies[policyID]
	if !ok {
		return Policy{}, false
	}
	return *p, true
}

func (e *Engine) Policies() []Policy {
	out := make([]Policy, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.policies[id])
	}
	return out
}

// SelectAction picks among actions with epsilon-greedy exploration. When
// exploiting, ties go to the earliest action in the list.
func (e *Engine) SelectAction(policyID string, state State, actions []string) (Selection, error) {
	p, ok := e.policies[policyID]
	if !ok {
		return Selection{}, fmt.Errorf("policy %q: %w", policyID, pkgerrors.ErrNotFound)
	}
	if len(actions) == 0 {
		return Selection{}, fmt.Errorf("policy %q: no candidate actions: %w", policyID, pkgerrors.ErrInvalidArgument)
	}

	explore := e.rng.Float64() < p.Epsilon
	var chosen string
	var expected float64
	if explore {
		chosen = actions[e.rng.Intn(len(actions))]
		expected = NeutralQ
	} else {
		chosen = actions[0]
		expected = e.QValue(policyID, state, chosen)
		for _, a := range actions[1:] {
			if v := e.QValue(policyID, state, a); v > expected {
				chosen, expected = a, v
			}
		}
	}

	return Selection{
		RecommendedAction:      chosen,
		ExpectedReward:         clamp01(expected),
		ExplorationProbability: p.Epsilon,
		Exploration:            explore,
		Reasoning:              e.reasoning(policyID, state, chosen, explore),
	}, nil
}

// ObserveReward turns an action's outcome into a reward and applies the TD
// update Q(s,a) += alpha*(r + gamma*max Q(s',a') - Q(s,a)). Actions for an
// unregistered policy are ignored so feedback never fails the caller.
func (e *Engine) ObserveReward(action LearningAction, newState State, nextActions []string) Observation {
	policyID := action.PolicyID()
	p, ok := e.policies[policyID]
	if !ok {
		e.log.Debug("reward ignored for unknown policy", "policy_id", policyID, "action_id", action.ActionID)
		return Observation{PolicyID: policyID}
	}

	reward := e.reward(action)
	state := StateFor(action.Context)
	current := e.QValue(policyID, state, action.ContentID)
	maxNext := e.maxQ(policyID, newState, nextActions)
	updated := current + p.Alpha*(reward+p.Gamma*maxNext-current)
	updated = e.SetQValue(policyID, state, action.ContentID, updated)

	e.rewards[policyID] = append(e.rewards[policyID], reward)
	e.observed++
	decayed := false
	if e.observed%decayEveryRewards == 0 {
		before := p.Epsilon
		p.Epsilon = math.Max(p.Epsilon*epsilonDecayFactor, epsilonFloor)
		decayed = true
		e.log.Debug("exploration decayed", "policy_id", policyID, "from", before, "to", p.Epsilon, "observed", e.observed)
	}

	return Observation{
		PolicyID:  policyID,
		State:     state,
		Reward:    reward,
		PreviousQ: current,
		UpdatedQ:  updated,
		Decayed:   decayed,
		Applied:   true,
	}
}

// QValue returns Q(state, action), NeutralQ when never updated.
func (e *Engine) QValue(policyID string, state State, action string) float64 {
	if v, ok := e.q[qKey{policy: policyID, state: state, action: action}]; ok {
		return v
	}
	return NeutralQ
}

// SetQValue stores a clamped Q-value and returns what was stored.
func (e *Engine) SetQValue(policyID string, state State, action string, v float64) float64 {
	v = clamp01(v)
	e.q[qKey{policy: policyID, state: state, action: action}] = v
	return v
}

func (e *Engine) RewardHistory(policyID string) []float64 {
	return append([]float64(nil), e.rewards[policyID]...)
}

func (e *Engine) ObservedRewards() int { return e.observed }

// ResetQTable forgets all learned values and reward histories. Policy
// hyperparameters and the decay counter are kept.
func (e *Engine) ResetQTable() {
	e.q = map[qKey]float64{}
	e.rewards = map[string][]float64{}
}

func (e *Engine) maxQ(policyID string, state State, actions []string) float64 {
	if len(actions) == 0 {
		return NeutralQ
	}
	best := e.QValue(policyID, state, actions[0])
	for _, a := range actions[1:] {
		best = math.Max(best, e.QValue(policyID, state, a))
	}
	return best
}

func (e *Engine) reward(a LearningAction) float64 {
	r := 0.0
	switch a.StudentResponse {
	case ResponsePositive:
		r += rewardPositive
	case ResponseNeutral:
		r += rewardNeutral
	case ResponseNegative:
		r += rewardNegative
	}
	// Implicit engagement signal, bounded to [0, implicitRewardMax).
	r += e.rng.Float64() * implicitRewardMax
	return clamp01(r)
}

func (e *Engine) reasoning(policyID string, state State, action string, explore bool) string {
	mode := "Exploitation"
	if explore {
		mode = "Exploration"
	}
	q := e.QValue(policyID, state, action)
	return fmt.Sprintf("%s: Selected %q for policy %q. Expected outcome: %.0f%% success. State: %s",
		mode, action, policyID, q*100, state)
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
