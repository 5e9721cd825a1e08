package knowledge

import (
	"math"
	"math/rand"
	"testing"
	"time"

)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return t0 }
}

func newTestTracer(t *testing.T) *Tracer {
	t.Helper()
	return NewTracer(WithClock(fixedClock()))
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func prob(v float64) *float64 { return &v }

func TestInitializeSkillDefaults(t *testing.T) {
	tr := newTestTracer(t)
	st := tr.InitializeSkill("algebra", nil)
	if st.PKnown != DefaultPInit || st.PInit != DefaultPInit {
		t.Fatalf("InitializeSkill: pKnown=%v pInit=%v", st.PKnown, st.PInit)
	}
	if st.Attempts != 0 || st.CorrectCount != 0 {
		t.Fatalf("InitializeSkill: attempts=%d correct=%d", st.Attempts, st.CorrectCount)
	}
	if !st.LastUpdated.Equal(t0) {
		t.Fatalf("InitializeSkill: lastUpdated=%v", st.LastUpdated)
	}
}

func TestInitializeSkillOverridesAndReinit(t *testing.T) {
	tr := newTestTracer(t)
	tr.InitializeSkill("geometry", &SkillParams{PInit: prob(0.4), PGuess: prob(1.7)})
	st, ok := tr.State("geometry")
	if !ok {
		t.Fatal("State(geometry): missing")
	}
	if st.PKnown != 0.4 || st.PTransition != DefaultPTransition {
		t.Fatalf("override: got=%+v", st)
	}
	if st.PGuess != 1 {
		t.Fatalf("override clamp: pGuess=%v want=1", st.PGuess)
	}

	tr.UpdateKnowledge("geometry", true)
	tr.InitializeSkill("geometry", nil)
	st, _ = tr.State("geometry")
	if st.PKnown != DefaultPInit || st.Attempts != 0 {
		t.Fatalf("re-init: got=%+v", st)
	}
}

func TestUpdateKnowledgeFirstCorrectAnswer(t *testing.T) {
	tr := newTestTracer(t)
	tr.InitializeSkill("algebra", nil)
	res := tr.UpdateKnowledge("algebra", true)

	if res.PreviousKnowledge != 0.1 {
		t.Fatalf("previousKnowledge=%v want=0.1", res.PreviousKnowledge)
	}
	// posterior = 0.095/0.275 = 19/55; transition adds (36/55)*0.3.
	want := 29.8 / 55.0
	if !approx(res.UpdatedKnowledge, want, 1e-9) {
		t.Fatalf("updatedKnowledge=%v want=%v", res.UpdatedKnowledge, want)
	}
	if res.Confidence != 0.1 {
		t.Fatalf("confidence=%v want=0.1", res.Confidence)
	}
	wantNext := want*0.95 + (1-want)*0.2
	if !approx(res.PredictedNextCorrectProb, wantNext, 1e-9) {
		t.Fatalf("predictedNextCorrectProb=%v want=%v", res.PredictedNextCorrectProb, wantNext)
	}
	if res.RecommendedAction != ActionPractice {
		t.Fatalf("recommendedAction=%v", res.RecommendedAction)
	}
}

// A wrong answer still applies the learning transition, so mastery can rise.
func TestWrongAnswerStillAppliesTransition(t *testing.T) {
	tr := newTestTracer(t)
	res := tr.UpdateKnowledge("fractions", false)

	posterior := (0.05 * 0.1) / (0.05*0.1 + 0.8*0.9)
	want := posterior + (1-posterior)*0.3
	if !approx(res.UpdatedKnowledge, want, 1e-12) {
		t.Fatalf("updatedKnowledge=%v want=%v", res.UpdatedKnowledge, want)
	}
	if res.UpdatedKnowledge <= res.PreviousKnowledge {
		t.Fatalf("wrong answer should raise pKnown from the prior: prev=%v updated=%v", res.PreviousKnowledge, res.UpdatedKnowledge)
	}
	st, _ := tr.State("fractions")
	if st.Attempts != 1 || st.CorrectCount != 0 {
		t.Fatalf("counters: attempts=%d correct=%d", st.Attempts, st.CorrectCount)
	}
}

func TestPKnownStaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		tr := newTestTracer(t)
		tr.InitializeSkill("s", &SkillParams{
			PInit:       prob(rng.Float64()),
			PTransition: prob(rng.Float64()),
			PCorrect:    prob(rng.Float64()),
			PGuess:      prob(rng.Float64()),
		})
		for i := 0; i < 40; i++ {
			res := tr.UpdateKnowledge("s", rng.Intn(2) == 0)
			if res.UpdatedKnowledge < 0 || res.UpdatedKnowledge > 1 || math.IsNaN(res.UpdatedKnowledge) {
				t.Fatalf("trial %d step %d: pKnown=%v", trial, i, res.UpdatedKnowledge)
			}
		}
	}
}

func TestRepeatedCorrectAnswersReachMastery(t *testing.T) {
	tr := newTestTracer(t)
	var last TraceResult
	for i := 0; i < 10; i++ {
		last = tr.UpdateKnowledge("algebra", true)
		if last.UpdatedKnowledge > MasteryThreshold {
			break
		}
	}
	if last.UpdatedKnowledge <= MasteryThreshold {
		t.Fatalf("pKnown=%v never crossed mastery", last.UpdatedKnowledge)
	}
}

func TestRecommendedActionRules(t *testing.T) {
	tr := newTestTracer(t)

	// Correct streak: mastered only once attempts reach 3.
	if got := tr.UpdateKnowledge("a", true).RecommendedAction; got != ActionPractice {
		t.Fatalf("attempt 1: %v", got)
	}
	second := tr.UpdateKnowledge("a", true)
	if second.UpdatedKnowledge <= MasteryThreshold || second.RecommendedAction != ActionPractice {
		t.Fatalf("attempt 2: %+v", second)
	}
	if got := tr.UpdateKnowledge("a", true).RecommendedAction; got != ActionMaster {
		t.Fatalf("attempt 3: %v", got)
	}

	// Slow learner: prereq after two low attempts, intervention after five.
	tr.InitializeSkill("b", &SkillParams{PTransition: prob(0.05)})
	if got := tr.UpdateKnowledge("b", false).RecommendedAction; got != ActionPractice {
		t.Fatalf("b attempt 1: %v", got)
	}
	if got := tr.UpdateKnowledge("b", false).RecommendedAction; got != ActionPrereq {
		t.Fatalf("b attempt 2: %v", got)
	}
	for i := 3; i <= 5; i++ {
		tr.UpdateKnowledge("b", false)
	}
	if got := tr.UpdateKnowledge("b", false).RecommendedAction; got != ActionIntervention {
		t.Fatalf("b attempt 6: %v", got)
	}
}

func TestPredictNextAttemptWithinGuessAndCorrect(t *testing.T) {
	tr := newTestTracer(t)
	if got := tr.PredictNextAttempt("unseen"); got != DefaultPGuess {
		t.Fatalf("unseen: got=%v", got)
	}
	for i, correct := range []bool{true, false, true, true, false, true, true, true} {
		tr.UpdateKnowledge("s", correct)
		p := tr.PredictNextAttempt("s")
		if p < DefaultPGuess-1e-12 || p > DefaultPCorrect+1e-12 {
			t.Fatalf("step %d: p=%v outside [%v,%v]", i, p, DefaultPGuess, DefaultPCorrect)
		}
	}
}

func TestEstimateTimeToMastery(t *testing.T) {
	tr := newTestTracer(t)
	if got := tr.EstimateTimeToMastery("unknown", 1); got != 7 {
		t.Fatalf("unknown: got=%d want=7", got)
	}
	tr.InitializeSkill("s", nil)
	// ceil((0.85-0.1)/0.3) = 3 attempts.
	if got := tr.EstimateTimeToMastery("s", 1); got != 3 {
		t.Fatalf("1/day: got=%d want=3", got)
	}
	if got := tr.EstimateTimeToMastery("s", 2); got != 2 {
		t.Fatalf("2/day: got=%d want=2", got)
	}
	if got := tr.EstimateTimeToMastery("s", 0); got != 3 {
		t.Fatalf("0/day treated as 1: got=%d", got)
	}
	tr.InitializeSkill("edge", &SkillParams{PInit: prob(MasteryThreshold)})
	if got := tr.EstimateTimeToMastery("edge", 1); got <= 0 {
		t.Fatalf("at threshold (not above) should be positive: got=%d", got)
	}
	for tr.Mastery("s") <= MasteryThreshold {
		tr.UpdateKnowledge("s", true)
	}
	if got := tr.EstimateTimeToMastery("s", 1); got != 0 {
		t.Fatalf("mastered: got=%d want=0", got)
	}
}

func TestBatchUpdateIsSequential(t *testing.T) {
	a := newTestTracer(t)
	b := newTestTracer(t)
	responses := []Response{{"x", true}, {"x", false}, {"y", true}, {"x", true}}

	batch := a.BatchUpdate(responses)
	for i, r := range responses {
		single := b.UpdateKnowledge(r.SkillID, r.IsCorrect)
		if single != batch[i] {
			t.Fatalf("step %d: batch=%+v single=%+v", i, batch[i], single)
		}
	}
	if batch[1].PreviousKnowledge != batch[0].UpdatedKnowledge {
		t.Fatalf("second update did not see the first: %+v", batch)
	}
}

func TestGlobalStatisticsAndStatuses(t *testing.T) {
	tr := newTestTracer(t)
	if got := tr.GlobalStatistics(); got != (GlobalStatistics{}) {
		t.Fatalf("empty: got=%+v", got)
	}
	for i := 0; i < 4; i++ {
		tr.UpdateKnowledge("mastered", true)
	}
	tr.InitializeSkill("stuck", &SkillParams{PTransition: prob(0.01)})
	for i := 0; i < 6; i++ {
		tr.UpdateKnowledge("stuck", false)
	}
	tr.InitializeSkill("fresh", nil)

	stats := tr.GlobalStatistics()
	if stats.TotalSkillsTracked != 3 || stats.MasteredCount != 1 || stats.StrugglingCount != 1 || stats.TotalAttempts != 10 {
		t.Fatalf("stats=%+v", stats)
	}
	wantAvg := (tr.Mastery("mastered") + tr.Mastery("stuck") + tr.Mastery("fresh")) / 3
	if !approx(stats.AverageMastery, wantAvg, 1e-12) {
		t.Fatalf("averageMastery=%v want=%v", stats.AverageMastery, wantAvg)
	}

	statuses := map[string]string{}
	for _, s := range tr.AllStates() {
		statuses[s.SkillID] = s.Status
	}
	if statuses["mastered"] != "Mastered" || statuses["stuck"] != "Struggling" || statuses["fresh"] != "Learning" {
		t.Fatalf("statuses=%v", statuses)
	}
}

func TestResetSkill(t *testing.T) {
	tr := newTestTracer(t)
	if tr.ResetSkill("missing") {
		t.Fatal("ResetSkill(missing) reported true")
	}
	tr.InitializeSkill("s", &SkillParams{PInit: prob(0.25)})
	tr.UpdateKnowledge("s", true)
	tr.UpdateKnowledge("s", true)
	if !tr.ResetSkill("s") {
		t.Fatal("ResetSkill(s) reported false")
	}
	st, _ := tr.State("s")
	if st.PKnown != 0.25 || st.Attempts != 0 || st.CorrectCount != 0 {
		t.Fatalf("after reset: %+v", st)
	}
	if p := tr.Progression("s"); p.MasteryPercentage != 25 {
		t.Fatalf("progression: %+v", p)
	}
}
