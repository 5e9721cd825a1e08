package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/forecast"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/knowledge"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/policy"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type memStore struct {
	mu      sync.Mutex
	snaps   map[uuid.UUID][]LearnerSnapshot
	loads   int
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{snaps: map[uuid.UUID][]LearnerSnapshot{}}
}

func (m *memStore) Load(_ context.Context, learnerID uuid.UUID) (*LearnerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	list := m.snaps[learnerID]
	if len(list) == 0 {
		return nil, fmt.Errorf("learner %s: %w", learnerID, pkgerrors.ErrNotFound)
	}
	s := list[len(list)-1]
	return &s, nil
}

func (m *memStore) Save(_ context.Context, learnerID uuid.UUID, k, p []byte) (*LearnerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	s := LearnerSnapshot{
		LearnerID: learnerID,
		Version:   len(m.snaps[learnerID]) + 1,
		Knowledge: append(json.RawMessage(nil), k...),
		Policies:  append(json.RawMessage(nil), p...),
		CreatedAt: time.Now(),
	}
	m.snaps[learnerID] = append(m.snaps[learnerID], s)
	return &s, nil
}

func (m *memStore) Versions(_ context.Context, learnerID uuid.UUID, limit int) ([]SnapshotVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SnapshotVersion
	list := m.snaps[learnerID]
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, SnapshotVersion{Version: list[i].Version, CreatedAt: list[i].CreatedAt})
	}
	return out, nil
}

func (m *memStore) versions(learnerID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps[learnerID])
}

type exploitRand struct{}

func (exploitRand) Float64() float64 { return 0.5 }
func (exploitRand) Intn(int) int     { return 0 }

func newTestService(t *testing.T, store SnapshotStore) LearnerModelService {
	t.Helper()
	return NewLearnerModelService(logger.Nop(), store, nil, observability.NewMetrics(), LearnerModelConfig{
		NewRand: func() policy.Rand { return exploitRand{} },
	})
}

func answers(skill string, pattern ...bool) []knowledge.Response {
	out := make([]knowledge.Response, len(pattern))
	for i, c := range pattern {
		out[i] = knowledge.Response{SkillID: skill, IsCorrect: c}
	}
	return out
}

func TestRecordAnswersTracksKnowledge(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	res, err := svc.RecordAnswers(ctx, id, answers("fractions", true, true, true, true, true))
	if err != nil {
		t.Fatalf("RecordAnswers: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("results = %d, want 5", len(res))
	}
	for i := 1; i < len(res); i++ {
		if res[i].UpdatedKnowledge < res[i-1].UpdatedKnowledge {
			t.Fatalf("mastery dropped on correct answer at %d: %+v", i, res)
		}
	}
	if res[4].RecommendedAction != knowledge.ActionMaster {
		t.Fatalf("action = %s, want master", res[4].RecommendedAction)
	}

	view, err := svc.Knowledge(ctx, id)
	if err != nil {
		t.Fatalf("Knowledge: %v", err)
	}
	if view.Statistics.TotalSkillsTracked != 1 || view.Statistics.TotalAttempts != 5 || view.Statistics.MasteredCount != 1 {
		t.Fatalf("stats = %+v", view.Statistics)
	}
	if len(view.Skills) != 1 || view.Skills[0].SkillID != "fractions" {
		t.Fatalf("skills = %+v", view.Skills)
	}

	d, err := svc.SkillDetail(ctx, id, "fractions", 3)
	if err != nil {
		t.Fatalf("SkillDetail: %v", err)
	}
	if d.State.Attempts != 5 || d.DaysToMastery != 0 || d.Progression.Attempts != 5 {
		t.Fatalf("detail = %+v", d)
	}
}

func TestRecordAnswersRejectsBadInput(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	if _, err := svc.RecordAnswers(ctx, uuid.Nil, answers("a", true)); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("nil learner: %v", err)
	}
	if _, err := svc.RecordAnswers(ctx, uuid.New(), nil); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, uuid.New(), knowledge.Response{}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("missing skill: %v", err)
	}
}

func TestSkillDetailAndResetUnknownSkill(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.SkillDetail(ctx, id, "nope", 1); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("SkillDetail: %v", err)
	}
	if err := svc.ResetSkill(ctx, id, "nope"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("ResetSkill: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, id, knowledge.Response{SkillID: "algebra", IsCorrect: true}); err != nil {
		t.Fatal(err)
	}
	if err := svc.ResetSkill(ctx, id, "algebra"); err != nil {
		t.Fatalf("ResetSkill: %v", err)
	}
	d, err := svc.SkillDetail(ctx, id, "algebra", 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.State.Attempts != 0 || d.State.PKnown != knowledge.DefaultPInit {
		t.Fatalf("after reset = %+v", d.State)
	}
}

func TestInitializeSkillsStartsOver(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.InitializeSkills(ctx, id, nil); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("no skills: %v", err)
	}
	if _, err := svc.InitializeSkills(ctx, id, map[string]*knowledge.SkillParams{"": nil}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("blank skill: %v", err)
	}

	if _, err := svc.RecordAnswers(ctx, id, answers("algebra", true, true, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CheckpointAll(ctx); err != nil {
		t.Fatal(err)
	}

	pInit := 0.6
	states, err := svc.InitializeSkills(ctx, id, map[string]*knowledge.SkillParams{
		"geometry": nil,
		"algebra":  {PInit: &pInit},
	})
	if err != nil {
		t.Fatalf("InitializeSkills: %v", err)
	}
	if len(states) != 2 || states[0].SkillID != "algebra" || states[1].SkillID != "geometry" {
		t.Fatalf("states = %+v", states)
	}
	if states[0].Attempts != 0 || states[0].PKnown != 0.6 {
		t.Fatalf("algebra not restarted: %+v", states[0])
	}
	if states[1].PKnown != knowledge.DefaultPInit {
		t.Fatalf("geometry = %+v", states[1])
	}

	if n, err := svc.CheckpointAll(ctx); err != nil || n != 1 {
		t.Fatalf("CheckpointAll after initialize = %d, %v", n, err)
	}
}

func TestNextActionAndObserveOutcome(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()
	profile := Profile{LearningStyle: "visual", Motivation: "high", TimeOfDay: "morning"}

	sel, err := svc.NextAction(ctx, id, ActionRequest{
		PolicyID: policy.ContentSelection,
		Profile:  profile,
		Actions:  []string{"video", "article"},
	})
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if sel.Exploration || sel.RecommendedAction != "video" || sel.ExpectedReward != policy.NeutralQ {
		t.Fatalf("selection = %+v", sel)
	}

	obs, err := svc.ObserveOutcome(ctx, id, OutcomeRequest{
		Action: policy.LearningAction{
			ActionID:        "a1",
			Type:            policy.ActionContent,
			ContentID:       "article",
			StudentResponse: policy.ResponsePositive,
			Context: policy.Context{
				StudentProficiency: 0.5,
				LearningStyle:      "visual",
				MotivationLevel:    "high",
				TimeOfDay:          "morning",
			},
		},
		NextProfile: profile,
		NextActions: []string{"video", "article"},
	})
	if err != nil {
		t.Fatalf("ObserveOutcome: %v", err)
	}
	if !obs.Applied || obs.UpdatedQ <= obs.PreviousQ {
		t.Fatalf("observation = %+v", obs)
	}

	// With no skill named, proficiency falls back to the prior (0.3, low),
	// which is a different state from the mid-bucket update above.
	sel, err = svc.NextAction(ctx, id, ActionRequest{PolicyID: policy.ContentSelection, Profile: profile, Actions: []string{"video", "article"}})
	if err != nil {
		t.Fatal(err)
	}
	if sel.RecommendedAction != "video" {
		t.Fatalf("low bucket should be untouched, got %+v", sel)
	}

	perf, err := svc.PolicyPerformance(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(perf) != 4 || perf[0].PolicyID != policy.ContentSelection || perf[0].SampleCount != 1 {
		t.Fatalf("performance = %+v", perf)
	}
}

func TestObserveOutcomeUnknownTypesShareOneSeries(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := NewLearnerModelService(logger.Nop(), newMemStore(), nil, metrics, LearnerModelConfig{})
	ctx := context.Background()
	id := uuid.New()

	for i := 0; i < 50; i++ {
		obs, err := svc.ObserveOutcome(ctx, id, OutcomeRequest{Action: policy.LearningAction{
			ActionID:  fmt.Sprintf("a%d", i),
			Type:      policy.ActionType(fmt.Sprintf("junk-%d", i)),
			ContentID: "video",
		}})
		if err != nil {
			t.Fatalf("ObserveOutcome(junk-%d): %v", i, err)
		}
		if obs.Applied {
			t.Fatalf("junk-%d applied: %+v", i, obs)
		}
	}
	n, err := promtestutil.GatherAndCount(metrics.Gatherer(), "edusense_policy_rewards_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Fatalf("reward series = %d, want 1", n)
	}
}

func TestNextActionErrors(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.NextAction(ctx, id, ActionRequest{PolicyID: "nope", Actions: []string{"a"}}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown policy: %v", err)
	}
	if _, err := svc.NextAction(ctx, id, ActionRequest{PolicyID: policy.LearningStrategy}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("no actions: %v", err)
	}
	if _, err := svc.Trajectory(ctx, id, "nope"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Trajectory: %v", err)
	}
	tr, err := svc.Trajectory(ctx, id, policy.TimingOptimization)
	if err != nil || tr.SampleCount != 0 {
		t.Fatalf("empty trajectory = %+v, %v", tr, err)
	}
}

func TestForecastUsesTracedKnowledge(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	signals := ProfileSignals{
		AverageScore:  80,
		RecentScore:   85,
		ScoreVariance: 10,
		DaysActive:    30,
		SessionsCount: 40,
		StreakDays:    10,
		AttentionSpan: 40,
		ErrorRate:     0.9,
	}
	before, err := svc.Forecast(ctx, id, signals)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if _, err := svc.RecordAnswers(ctx, id, answers("a", true, true, true, true, true, true)); err != nil {
		t.Fatal(err)
	}
	after, err := svc.Forecast(ctx, id, signals)
	if err != nil {
		t.Fatal(err)
	}
	// Traced answers replace the 0.9 signal error rate with 0 and add a
	// mastered skill.
	if after.PredictedScore <= before.PredictedScore {
		t.Fatalf("forecast did not improve: before %d after %d", before.PredictedScore, after.PredictedScore)
	}
	for _, p := range []forecast.Prediction{before, after} {
		if p.LowerBound > p.PredictedScore || p.PredictedScore > p.UpperBound {
			t.Fatalf("bounds: %+v", p)
		}
	}

	if _, err := svc.ForecastSkill(ctx, id, "", signals); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("ForecastSkill without skill: %v", err)
	}
	sp, err := svc.ForecastSkill(ctx, id, "a", signals)
	if err != nil {
		t.Fatal(err)
	}
	if sp.PredictedScore < after.PredictedScore {
		t.Fatalf("mastered skill adjustment lowered score: %d < %d", sp.PredictedScore, after.PredictedScore)
	}
}

func TestTrainingExamplesAndMetrics(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	n, err := svc.AddTrainingExample(ctx, forecast.Features{AverageScore: 50}, 60)
	if err != nil || n != 1 {
		t.Fatalf("AddTrainingExample = %d, %v", n, err)
	}
	if _, err := svc.AddTrainingExample(ctx, forecast.Features{}, 101); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("out of range score: %v", err)
	}
	if m := svc.ModelMetrics(); m.Accuracy == 0 {
		t.Fatalf("metrics = %+v", m)
	}
	out := svc.BatchForecast(ctx, []forecast.Features{{AverageScore: 90}, {AverageScore: 10}})
	if len(out) != 2 {
		t.Fatalf("batch = %d", len(out))
	}
}

func TestTrainingExamplesFeedDriftMonitor(t *testing.T) {
	drift := observability.NewDriftMonitor(observability.DriftConfig{Window: 1, Threshold: 1}, nil)
	svc := NewLearnerModelService(logger.Nop(), newMemStore(), nil, nil, LearnerModelConfig{Drift: drift})
	features := forecast.Features{AverageScore: 80, StreakDays: 3}

	if _, err := svc.AddTrainingExample(context.Background(), features, 0); err != nil {
		t.Fatalf("AddTrainingExample: %v", err)
	}
	want := float64(forecast.NewEngine().PredictPerformance(features).PredictedScore)
	if got := drift.MAE(); got != want {
		t.Fatalf("drift MAE = %v, want %v", got, want)
	}
}

func TestCheckpointAndRestore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	id := uuid.New()

	svc := newTestService(t, store)
	if _, err := svc.RecordAnswers(ctx, id, answers("geometry", true, false, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ObserveOutcome(ctx, id, OutcomeRequest{Action: policy.LearningAction{
		Type: policy.ActionTiming, ContentID: "evening", StudentResponse: policy.ResponseNeutral,
	}}); err != nil {
		t.Fatal(err)
	}
	v, err := svc.Checkpoint(ctx, id)
	if err != nil || v != 1 {
		t.Fatalf("Checkpoint = %d, %v", v, err)
	}
	want, err := svc.Export(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if want.Version != 1 {
		t.Fatalf("export version = %d", want.Version)
	}

	fresh := newTestService(t, store)
	got, err := fresh.Export(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Knowledge) != string(want.Knowledge) || string(got.Policies) != string(want.Policies) {
		t.Fatalf("restored snapshot differs:\n%s\n%s", got.Knowledge, want.Knowledge)
	}
	if got.Version != 1 {
		t.Fatalf("restored version = %d", got.Version)
	}

	if _, err := svc.RecordAnswer(ctx, id, knowledge.Response{SkillID: "geometry", IsCorrect: true}); err != nil {
		t.Fatal(err)
	}
	if v, err := svc.Checkpoint(ctx, id); err != nil || v != 2 {
		t.Fatalf("second Checkpoint = %d, %v", v, err)
	}
	history, err := svc.History(ctx, id, 1)
	if err != nil || len(history) != 1 || history[0].Version != 2 {
		t.Fatalf("History = %+v, %v", history, err)
	}
}

func TestCheckpointAllSavesOnlyDirtyLearners(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b} {
		if _, err := svc.RecordAnswer(ctx, id, knowledge.Response{SkillID: "s", IsCorrect: true}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Knowledge(ctx, c); err != nil {
		t.Fatal(err)
	}
	if svc.Loaded() != 3 {
		t.Fatalf("loaded = %d", svc.Loaded())
	}

	n, err := svc.CheckpointAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CheckpointAll = %d, %v", n, err)
	}
	if store.versions(c) != 0 {
		t.Fatal("read-only learner was checkpointed")
	}

	n, err = svc.CheckpointAll(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second CheckpointAll = %d, %v", n, err)
	}
}

func TestCheckpointFailureKeepsLearnerDirty(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.RecordAnswer(ctx, id, knowledge.Response{SkillID: "s", IsCorrect: true}); err != nil {
		t.Fatal(err)
	}
	store.saveErr = errors.New("db down")
	if _, err := svc.CheckpointAll(ctx); err == nil {
		t.Fatal("expected error")
	}
	store.saveErr = nil
	n, err := svc.CheckpointAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("retry = %d, %v", n, err)
	}
}

func TestLoadErrorIsReturned(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("boom")
	svc := newTestService(t, store)

	if _, err := svc.Knowledge(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected load error")
	}
	if svc.Loaded() != 0 {
		t.Fatalf("failed load was cached")
	}
}

func TestConcurrentFirstTouchLoadsOnce(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RecordAnswer(context.Background(), id, knowledge.Response{SkillID: "s", IsCorrect: true})
		}()
	}
	wg.Wait()

	view, err := svc.Knowledge(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if view.Statistics.TotalAttempts != 20 {
		t.Fatalf("attempts = %d, want 20", view.Statistics.TotalAttempts)
	}
	if svc.Loaded() != 1 {
		t.Fatalf("loaded = %d", svc.Loaded())
	}
}

func TestImportIsAtomic(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	if _, err := svc.RecordAnswer(ctx, id, knowledge.Response{SkillID: "kept", IsCorrect: true}); err != nil {
		t.Fatal(err)
	}
	before, _ := svc.Export(ctx, id)

	bad := LearnerSnapshot{
		Knowledge: json.RawMessage(`{"new":{"skillId":"new","pKnown":0.5}}`),
		Policies:  json.RawMessage(`{"rewardHistories":{"content_selection":[2]}}`),
	}
	if err := svc.Import(ctx, id, bad); err == nil {
		t.Fatal("expected import error")
	}
	after, _ := svc.Export(ctx, id)
	if string(after.Knowledge) != string(before.Knowledge) {
		t.Fatal("knowledge changed by a failed import")
	}

	other := uuid.New()
	if _, err := svc.RecordAnswers(ctx, other, answers("moved", true, true)); err != nil {
		t.Fatal(err)
	}
	good, _ := svc.Export(ctx, other)
	if err := svc.Import(ctx, id, good); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := svc.SkillDetail(ctx, id, "kept", 1); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("import should replace state: %v", err)
	}
	if _, err := svc.SkillDetail(ctx, id, "moved", 1); err != nil {
		t.Fatalf("imported skill missing: %v", err)
	}
}

func TestImportCarriesSnapshotVersion(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	id := uuid.New()

	snap := LearnerSnapshot{Version: 5, Knowledge: json.RawMessage(`{}`), Policies: json.RawMessage(`{}`)}
	if err := svc.Import(ctx, id, snap); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got, _ := svc.Export(ctx, id); got.Version != 5 {
		t.Fatalf("version after import = %d, want 5", got.Version)
	}

	// A snapshot without a version leaves the current one alone.
	snap.Version = 0
	if err := svc.Import(ctx, id, snap); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got, _ := svc.Export(ctx, id); got.Version != 5 {
		t.Fatalf("version after unversioned import = %d, want 5", got.Version)
	}
}
