package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/forecast"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/knowledge"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/policy"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

// Profile carries the categorical labels the learner profiling side assigns.
type Profile struct {
	LearningStyle string `json:"learningStyle"`
	Motivation    string `json:"motivation"`
	TimeOfDay     string `json:"timeOfDay"`
}

type ActionRequest struct {
	PolicyID string   `json:"policyId" validate:"required"`
	SkillID  string   `json:"skillId"`
	Profile  Profile  `json:"profile"`
	Actions  []string `json:"actions" validate:"required,min=1,dive,required"`
}

type OutcomeRequest struct {
	Action      policy.LearningAction `json:"action"`
	SkillID     string                `json:"skillId"`
	NextProfile Profile               `json:"nextProfile"`
	NextActions []string              `json:"nextActions"`
}

// ProfileSignals are the forecast inputs that do not come from knowledge
// tracing: score history, engagement and context.
type ProfileSignals struct {
	AverageScore           float64 `json:"averageScore" validate:"gte=0,lte=100"`
	RecentScore            float64 `json:"recentScore" validate:"gte=0,lte=100"`
	ScoreVariance          float64 `json:"scoreVariance" validate:"gte=0"`
	DaysActive             int     `json:"daysActive" validate:"gte=0"`
	SessionsCount          int     `json:"sessionsCount" validate:"gte=0"`
	AverageSessionDuration float64 `json:"averageSessionDuration" validate:"gte=0"`
	StreakDays             int     `json:"streakDays" validate:"gte=0"`
	TimeOfDayPreference    int     `json:"timeOfDayPreference" validate:"gte=0,lte=23"`
	AttentionSpan          float64 `json:"attentionSpan" validate:"gte=0"`
	// ErrorRate is used only while no answers have been traced.
	ErrorRate            float64 `json:"errorRate" validate:"gte=0,lte=1"`
	Subject              string  `json:"subject"`
	Difficulty           string  `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced expert"`
	EducationLevel       string  `json:"educationLevel"`
	DaysSinceLastAttempt float64 `json:"daysSinceLastAttempt" validate:"gte=0"`
	DaysSinceMastered    float64 `json:"daysSinceMastered" validate:"gte=0"`
}

type KnowledgeView struct {
	Skills     []knowledge.SkillSummary   `json:"skills"`
	Statistics knowledge.GlobalStatistics `json:"statistics"`
}

type SkillDetail struct {
	State                    knowledge.SkillState  `json:"state"`
	Progression              knowledge.Progression `json:"progression"`
	PredictedNextCorrectProb float64               `json:"predictedNextCorrectProb"`
	DaysToMastery            int                   `json:"daysToMastery"`
}

type LearnerModelService interface {
	RecordAnswer(ctx context.Context, learnerID uuid.UUID, answer knowledge.Response) (knowledge.TraceResult, error)
	RecordAnswers(ctx context.Context, learnerID uuid.UUID, answers []knowledge.Response) ([]knowledge.TraceResult, error)
	Knowledge(ctx context.Context, learnerID uuid.UUID) (KnowledgeView, error)
	SkillDetail(ctx context.Context, learnerID uuid.UUID, skillID string, attemptsPerDay int) (SkillDetail, error)
	ResetSkill(ctx context.Context, learnerID uuid.UUID, skillID string) error
	// InitializeSkills starts tracing the given skills. A nil entry uses the
	// tracer defaults; an already tracked skill starts over.
	InitializeSkills(ctx context.Context, learnerID uuid.UUID, skills map[string]*knowledge.SkillParams) ([]knowledge.SkillState, error)

	NextAction(ctx context.Context, learnerID uuid.UUID, req ActionRequest) (policy.Selection, error)
	ObserveOutcome(ctx context.Context, learnerID uuid.UUID, req OutcomeRequest) (policy.Observation, error)
	PolicyPerformance(ctx context.Context, learnerID uuid.UUID) ([]policy.Performance, error)
	Trajectory(ctx context.Context, learnerID uuid.UUID, policyID string) (policy.Trajectory, error)

	Forecast(ctx context.Context, learnerID uuid.UUID, signals ProfileSignals) (forecast.Prediction, error)
	ForecastSkill(ctx context.Context, learnerID uuid.UUID, skill string, signals ProfileSignals) (forecast.Prediction, error)
	BatchForecast(ctx context.Context, list []forecast.Features) []forecast.Prediction
	AddTrainingExample(ctx context.Context, features forecast.Features, actualScore float64) (int, error)
	ModelMetrics() forecast.ModelMetrics

	Export(ctx context.Context, learnerID uuid.UUID) (LearnerSnapshot, error)
	Import(ctx context.Context, learnerID uuid.UUID, snap LearnerSnapshot) error
	Checkpoint(ctx context.Context, learnerID uuid.UUID) (int, error)
	// History lists persisted snapshot versions, newest first.
	History(ctx context.Context, learnerID uuid.UUID, limit int) ([]SnapshotVersion, error)
	// CheckpointAll saves every learner changed since its last checkpoint and
	// returns how many were saved.
	CheckpointAll(ctx context.Context) (int, error)
	Loaded() int
}

type LearnerModelConfig struct {
	Knowledge             knowledge.Params
	PolicyTuning          map[string]policy.Tuning
	CheckpointConcurrency int
	// NewRand seeds each learner's policy engine; nil uses the engine default.
	NewRand func() policy.Rand
	Clock   func() time.Time
	// Drift compares each training example with the current forecast; nil disables it.
	Drift *observability.DriftMonitor
}

type learnerEntry struct {
	mu       sync.Mutex
	tracer   *knowledge.Tracer
	policies *policy.Engine
	version  int
	dirty    bool
}

type learnerModelService struct {
	log       *logger.Logger
	store     SnapshotStore
	forecast  *forecast.Engine
	metrics   *observability.Metrics
	cfg       LearnerModelConfig
	tracer    trace.Tracer
	loadGroup singleflight.Group

	mu       sync.Mutex
	learners map[uuid.UUID]*learnerEntry
}

func NewLearnerModelService(
	baseLog *logger.Logger,
	store SnapshotStore,
	forecaster *forecast.Engine,
	metrics *observability.Metrics,
	cfg LearnerModelConfig,
) LearnerModelService {
	if cfg.CheckpointConcurrency < 1 {
		cfg.CheckpointConcurrency = 4
	}
	if cfg.Knowledge == (knowledge.Params{}) {
		cfg.Knowledge = knowledge.DefaultParams()
	}
	if forecaster == nil {
		forecaster = forecast.NewEngine(forecast.WithLogger(baseLog))
	}
	return &learnerModelService{
		log:      baseLog.With("service", "LearnerModelService"),
		store:    store,
		forecast: forecaster,
		metrics:  metrics,
		cfg:      cfg,
		tracer:   observability.Tracer(),
		learners: map[uuid.UUID]*learnerEntry{},
	}
}

func (s *learnerModelService) newEntry() *learnerEntry {
	kopts := []knowledge.Option{knowledge.WithDefaults(s.cfg.Knowledge), knowledge.WithLogger(s.log)}
	if s.cfg.Clock != nil {
		kopts = append(kopts, knowledge.WithClock(s.cfg.Clock))
	}
	popts := []policy.Option{policy.WithTuning(s.cfg.PolicyTuning), policy.WithLogger(s.log)}
	if s.cfg.NewRand != nil {
		popts = append(popts, policy.WithRand(s.cfg.NewRand()))
	}
	return &learnerEntry{
		tracer:   knowledge.NewTracer(kopts...),
		policies: policy.NewEngine(popts...),
	}
}

// restore imports snap into a fresh entry; the entry is discarded on error.
func (s *learnerModelService) restore(snap *LearnerSnapshot) (*learnerEntry, error) {
	e := s.newEntry()
	if len(snap.Knowledge) > 0 {
		if err := e.tracer.ImportStates(snap.Knowledge); err != nil {
			return nil, err
		}
	}
	if len(snap.Policies) > 0 {
		if err := e.policies.ImportPolicies(snap.Policies); err != nil {
			return nil, err
		}
	}
	e.version = snap.Version
	return e, nil
}

// entry returns the learner's engines, loading the latest snapshot on first
// use. Concurrent first touches share one load.
func (s *learnerModelService) entry(ctx context.Context, learnerID uuid.UUID) (*learnerEntry, error) {
	if learnerID == uuid.Nil {
		return nil, fmt.Errorf("learner id required: %w", pkgerrors.ErrInvalidArgument)
	}
	s.mu.Lock()
	e, ok := s.learners[learnerID]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	v, err, _ := s.loadGroup.Do(learnerID.String(), func() (interface{}, error) {
		s.mu.Lock()
		if e, ok := s.learners[learnerID]; ok {
			s.mu.Unlock()
			return e, nil
		}
		s.mu.Unlock()

		e := s.newEntry()
		if s.store != nil {
			snap, err := s.store.Load(ctx, learnerID)
			switch {
			case err == nil:
				restored, rerr := s.restore(snap)
				if rerr != nil {
					return nil, fmt.Errorf("restore learner %s v%d: %w", learnerID, snap.Version, rerr)
				}
				e = restored
				s.log.Info("learner restored", "learner_id", learnerID.String(), "version", snap.Version)
			case isNotFound(err):
			default:
				return nil, fmt.Errorf("load learner %s: %w", learnerID, err)
			}
		}

		s.mu.Lock()
		s.learners[learnerID] = e
		n := len(s.learners)
		s.mu.Unlock()
		s.metrics.SetActiveLearners(n)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*learnerEntry), nil
}

// with runs fn under the learner's lock. Mutating calls mark the learner for
// the next checkpoint.
func (s *learnerModelService) with(ctx context.Context, learnerID uuid.UUID, mutates bool, fn func(e *learnerEntry) error) error {
	e, err := s.entry(ctx, learnerID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e); err != nil {
		return err
	}
	if mutates {
		e.dirty = true
	}
	return nil
}

func (s *learnerModelService) span(ctx context.Context, name string, learnerID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "LearnerModel."+name, trace.WithAttributes(attribute.String("learner.id", learnerID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *learnerModelService) RecordAnswer(ctx context.Context, learnerID uuid.UUID, answer knowledge.Response) (knowledge.TraceResult, error) {
	out, err := s.RecordAnswers(ctx, learnerID, []knowledge.Response{answer})
	if err != nil {
		return knowledge.TraceResult{}, err
	}
	return out[0], nil
}

func (s *learnerModelService) RecordAnswers(ctx context.Context, learnerID uuid.UUID, answers []knowledge.Response) (out []knowledge.TraceResult, err error) {
	ctx, span := s.span(ctx, "RecordAnswers", learnerID)
	defer func() { endSpan(span, err) }()

	if len(answers) == 0 {
		return nil, fmt.Errorf("no answers: %w", pkgerrors.ErrInvalidArgument)
	}
	for i, a := range answers {
		if a.SkillID == "" {
			return nil, fmt.Errorf("answer %d: skill id required: %w", i, pkgerrors.ErrInvalidArgument)
		}
	}
	err = s.with(ctx, learnerID, true, func(e *learnerEntry) error {
		out = e.tracer.BatchUpdate(answers)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, r := range out {
		s.metrics.IncKnowledgeUpdate(answers[i].IsCorrect, string(r.RecommendedAction))
	}
	span.SetAttributes(attribute.Int("answers", len(answers)))
	return out, nil
}

func (s *learnerModelService) Knowledge(ctx context.Context, learnerID uuid.UUID) (view KnowledgeView, err error) {
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		view = KnowledgeView{Skills: e.tracer.AllStates(), Statistics: e.tracer.GlobalStatistics()}
		return nil
	})
	return view, err
}

func (s *learnerModelService) SkillDetail(ctx context.Context, learnerID uuid.UUID, skillID string, attemptsPerDay int) (d SkillDetail, err error) {
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		st, ok := e.tracer.State(skillID)
		if !ok {
			return fmt.Errorf("skill %q: %w", skillID, pkgerrors.ErrNotFound)
		}
		d = SkillDetail{
			State:                    st,
			Progression:              e.tracer.Progression(skillID),
			PredictedNextCorrectProb: e.tracer.PredictNextAttempt(skillID),
			DaysToMastery:            e.tracer.EstimateTimeToMastery(skillID, attemptsPerDay),
		}
		return nil
	})
	return d, err
}

func (s *learnerModelService) ResetSkill(ctx context.Context, learnerID uuid.UUID, skillID string) error {
	return s.with(ctx, learnerID, true, func(e *learnerEntry) error {
		if !e.tracer.ResetSkill(skillID) {
			return fmt.Errorf("skill %q: %w", skillID, pkgerrors.ErrNotFound)
		}
		return nil
	})
}

func (s *learnerModelService) InitializeSkills(ctx context.Context, learnerID uuid.UUID, skills map[string]*knowledge.SkillParams) (out []knowledge.SkillState, err error) {
	ctx, span := s.span(ctx, "InitializeSkills", learnerID)
	defer func() { endSpan(span, err) }()

	if len(skills) == 0 {
		return nil, fmt.Errorf("no skills: %w", pkgerrors.ErrInvalidArgument)
	}
	ids := make([]string, 0, len(skills))
	for id := range skills {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("skill id required: %w", pkgerrors.ErrInvalidArgument)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err = s.with(ctx, learnerID, true, func(e *learnerEntry) error {
		out = make([]knowledge.SkillState, 0, len(ids))
		for _, id := range ids {
			out = append(out, e.tracer.InitializeSkill(id, skills[id]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("skills", len(ids)))
	return out, nil
}

// proficiency is the mastery of skillID, or the mean mastery across tracked
// skills when no skill is named.
func proficiency(tr *knowledge.Tracer, skillID string) float64 {
	if skillID != "" {
		return tr.Mastery(skillID)
	}
	stats := tr.GlobalStatistics()
	if stats.TotalSkillsTracked == 0 {
		return tr.Defaults().PInit
	}
	return stats.AverageMastery
}

func stateFor(tr *knowledge.Tracer, skillID string, p Profile) policy.State {
	return policy.State{
		Proficiency:   policy.BucketFor(proficiency(tr, skillID)),
		LearningStyle: p.LearningStyle,
		Motivation:    p.Motivation,
		TimeOfDay:     p.TimeOfDay,
	}
}

func (s *learnerModelService) NextAction(ctx context.Context, learnerID uuid.UUID, req ActionRequest) (sel policy.Selection, err error) {
	ctx, span := s.span(ctx, "NextAction", learnerID)
	defer func() { endSpan(span, err) }()

	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		var serr error
		sel, serr = e.policies.SelectAction(req.PolicyID, stateFor(e.tracer, req.SkillID, req.Profile), req.Actions)
		return serr
	})
	if err != nil {
		return policy.Selection{}, err
	}
	s.metrics.IncSelection(req.PolicyID, sel.Exploration)
	span.SetAttributes(attribute.String("policy.id", req.PolicyID), attribute.Bool("policy.exploration", sel.Exploration))
	return sel, nil
}

func (s *learnerModelService) ObserveOutcome(ctx context.Context, learnerID uuid.UUID, req OutcomeRequest) (obs policy.Observation, err error) {
	ctx, span := s.span(ctx, "ObserveOutcome", learnerID)
	defer func() { endSpan(span, err) }()

	err = s.with(ctx, learnerID, true, func(e *learnerEntry) error {
		action := req.Action
		if req.SkillID != "" {
			action.Context.StudentProficiency = e.tracer.Mastery(req.SkillID)
		}
		obs = e.policies.ObserveReward(action, stateFor(e.tracer, req.SkillID, req.NextProfile), req.NextActions)
		return nil
	})
	if err != nil {
		return policy.Observation{}, err
	}
	s.metrics.ObserveReward(obs.PolicyID, obs.Applied, obs.Reward)
	return obs, nil
}

func (s *learnerModelService) PolicyPerformance(ctx context.Context, learnerID uuid.UUID) (out []policy.Performance, err error) {
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		out = e.policies.PolicyPerformance()
		return nil
	})
	return out, err
}

func (s *learnerModelService) Trajectory(ctx context.Context, learnerID uuid.UUID, policyID string) (tr policy.Trajectory, err error) {
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		if _, ok := e.policies.Policy(policyID); !ok {
			return fmt.Errorf("policy %q: %w", policyID, pkgerrors.ErrNotFound)
		}
		tr = e.policies.AnalyzeTrajectory(policyID)
		return nil
	})
	return tr, err
}

// buildFeatures merges the learner's traced knowledge into the profile
// signals.
func buildFeatures(e *learnerEntry, sig ProfileSignals) forecast.Features {
	stats := e.tracer.GlobalStatistics()
	correct := 0
	for _, st := range e.tracer.Snapshot() {
		correct += st.CorrectCount
	}
	errorRate := sig.ErrorRate
	if stats.TotalAttempts > 0 {
		errorRate = 1 - float64(correct)/float64(stats.TotalAttempts)
	}
	return forecast.Features{
		AverageScore:           sig.AverageScore,
		RecentScore:            sig.RecentScore,
		ScoreVariance:          sig.ScoreVariance,
		TotalAttempts:          stats.TotalAttempts,
		MasteredSkills:         stats.MasteredCount,
		StrugglingSkills:       stats.StrugglingCount,
		AverageKnowledgeState:  stats.AverageMastery,
		DaysActive:             sig.DaysActive,
		SessionsCount:          sig.SessionsCount,
		AverageSessionDuration: sig.AverageSessionDuration,
		StreakDays:             sig.StreakDays,
		TimeOfDayPreference:    sig.TimeOfDayPreference,
		AttentionSpan:          sig.AttentionSpan,
		ErrorRate:              errorRate,
		Subject:                sig.Subject,
		Difficulty:             sig.Difficulty,
		EducationLevel:         sig.EducationLevel,
		DaysSinceLastAttempt:   sig.DaysSinceLastAttempt,
		DaysSinceMastered:      sig.DaysSinceMastered,
	}
}

func (s *learnerModelService) Forecast(ctx context.Context, learnerID uuid.UUID, signals ProfileSignals) (forecast.Prediction, error) {
	return s.forecastFor(ctx, learnerID, "", signals)
}

func (s *learnerModelService) ForecastSkill(ctx context.Context, learnerID uuid.UUID, skill string, signals ProfileSignals) (forecast.Prediction, error) {
	if skill == "" {
		return forecast.Prediction{}, fmt.Errorf("skill required: %w", pkgerrors.ErrInvalidArgument)
	}
	return s.forecastFor(ctx, learnerID, skill, signals)
}

func (s *learnerModelService) forecastFor(ctx context.Context, learnerID uuid.UUID, skill string, signals ProfileSignals) (p forecast.Prediction, err error) {
	ctx, span := s.span(ctx, "Forecast", learnerID)
	defer func() { endSpan(span, err) }()

	var features forecast.Features
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		features = buildFeatures(e, signals)
		return nil
	})
	if err != nil {
		return forecast.Prediction{}, err
	}
	if skill != "" {
		p = s.forecast.PredictSkillPerformance(features, skill)
	} else {
		p = s.forecast.PredictPerformance(features)
	}
	s.metrics.IncForecast(string(p.RiskLevel))
	span.SetAttributes(attribute.Int("forecast.score", p.PredictedScore), attribute.String("forecast.risk", string(p.RiskLevel)))
	return p, nil
}

func (s *learnerModelService) BatchForecast(ctx context.Context, list []forecast.Features) []forecast.Prediction {
	_, span := s.tracer.Start(ctx, "LearnerModel.BatchForecast", trace.WithAttributes(attribute.Int("batch.size", len(list))))
	defer span.End()
	out := s.forecast.BatchPredict(list)
	for _, p := range out {
		s.metrics.IncForecast(string(p.RiskLevel))
	}
	return out
}

func (s *learnerModelService) AddTrainingExample(ctx context.Context, features forecast.Features, actualScore float64) (int, error) {
	n, err := s.forecast.AddTrainingExample(features, actualScore)
	if err != nil {
		return 0, err
	}
	s.metrics.IncTrainingExample()
	if s.cfg.Drift != nil {
		p := s.forecast.PredictPerformance(features)
		s.cfg.Drift.Observe(ctx, float64(p.PredictedScore), actualScore)
	}
	return n, nil
}

func (s *learnerModelService) ModelMetrics() forecast.ModelMetrics {
	return s.forecast.ModelMetrics()
}

func (s *learnerModelService) Export(ctx context.Context, learnerID uuid.UUID) (snap LearnerSnapshot, err error) {
	err = s.with(ctx, learnerID, false, func(e *learnerEntry) error {
		var xerr error
		snap, xerr = exportEntry(learnerID, e)
		return xerr
	})
	return snap, err
}

func exportEntry(learnerID uuid.UUID, e *learnerEntry) (LearnerSnapshot, error) {
	k, err := e.tracer.ExportStates()
	if err != nil {
		return LearnerSnapshot{}, fmt.Errorf("export knowledge: %w", err)
	}
	p, err := e.policies.ExportPolicies()
	if err != nil {
		return LearnerSnapshot{}, fmt.Errorf("export policies: %w", err)
	}
	return LearnerSnapshot{LearnerID: learnerID, Version: e.version, Knowledge: k, Policies: p}, nil
}

// Import replaces both engines only when both halves of snap are valid.
func (s *learnerModelService) Import(ctx context.Context, learnerID uuid.UUID, snap LearnerSnapshot) (err error) {
	ctx, span := s.span(ctx, "Import", learnerID)
	defer func() { endSpan(span, err) }()

	fresh, err := s.restore(&snap)
	if err != nil {
		return err
	}
	return s.with(ctx, learnerID, true, func(e *learnerEntry) error {
		e.tracer = fresh.tracer
		e.policies = fresh.policies
		if fresh.version > 0 {
			e.version = fresh.version
		}
		return nil
	})
}

func (s *learnerModelService) Checkpoint(ctx context.Context, learnerID uuid.UUID) (version int, err error) {
	ctx, span := s.span(ctx, "Checkpoint", learnerID)
	defer func() { endSpan(span, err) }()

	e, err := s.entry(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	return s.checkpoint(ctx, learnerID, e)
}

func (s *learnerModelService) checkpoint(ctx context.Context, learnerID uuid.UUID, e *learnerEntry) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("no snapshot store configured")
	}
	start := time.Now()

	e.mu.Lock()
	snap, err := exportEntry(learnerID, e)
	wasDirty := e.dirty
	e.dirty = false
	e.mu.Unlock()
	if err != nil {
		s.metrics.ObserveCheckpoint("error", time.Since(start))
		return 0, err
	}

	saved, err := s.store.Save(ctx, learnerID, snap.Knowledge, snap.Policies)
	if err != nil {
		e.mu.Lock()
		e.dirty = e.dirty || wasDirty
		e.mu.Unlock()
		s.metrics.ObserveCheckpoint("error", time.Since(start))
		return 0, fmt.Errorf("save learner %s: %w", learnerID, err)
	}

	e.mu.Lock()
	if saved.Version > e.version {
		e.version = saved.Version
	}
	e.mu.Unlock()
	s.metrics.ObserveCheckpoint("ok", time.Since(start))
	return saved.Version, nil
}

func (s *learnerModelService) CheckpointAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "LearnerModel.CheckpointAll")
	defer span.End()

	type pending struct {
		id uuid.UUID
		e  *learnerEntry
	}
	var work []pending
	s.mu.Lock()
	for id, e := range s.learners {
		work = append(work, pending{id: id, e: e})
	}
	s.mu.Unlock()

	var saved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CheckpointConcurrency)
	for _, w := range work {
		w := w
		w.e.mu.Lock()
		dirty := w.e.dirty
		w.e.mu.Unlock()
		if !dirty {
			continue
		}
		g.Go(func() error {
			if _, err := s.checkpoint(gctx, w.id, w.e); err != nil {
				s.log.Warn("checkpoint failed", "learner_id", w.id.String(), "error", err)
				return err
			}
			saved.Add(1)
			return nil
		})
	}
	err := g.Wait()
	n := int(saved.Load())
	span.SetAttributes(attribute.Int("checkpoint.saved", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (s *learnerModelService) History(ctx context.Context, learnerID uuid.UUID, limit int) ([]SnapshotVersion, error) {
	if learnerID == uuid.Nil {
		return nil, fmt.Errorf("learner id required: %w", pkgerrors.ErrInvalidArgument)
	}
	h, ok := s.store.(SnapshotHistory)
	if !ok {
		return []SnapshotVersion{}, nil
	}
	return h.Versions(ctx, learnerID, limit)
}

func (s *learnerModelService) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.learners)
}
