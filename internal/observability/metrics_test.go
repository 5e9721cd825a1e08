package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("ops", "GET", "/x", "200", time.Millisecond)
	m.ApiInflightInc()
	m.ApiInflightDec()
	m.IncKnowledgeUpdate(true, "practice")
	m.IncSelection("content_selection", false)
	m.ObserveReward("content_selection", true, 0.5)
	m.IncForecast("low")
	m.IncTrainingExample()
	m.SetActiveLearners(3)
	m.ObserveCheckpoint("ok", time.Millisecond)
	m.StartPostgresCollector(nil, nil, nil)
	m.StartRedisCollector(nil, nil, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status = %d", rec.Code)
	}
}

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.IncKnowledgeUpdate(true, "master")
	m.IncKnowledgeUpdate(true, "master")
	m.IncKnowledgeUpdate(false, "intervention")
	if got := testutil.ToFloat64(m.knowledgeUpdates.WithLabelValues("true", "master")); got != 2 {
		t.Fatalf("knowledge updates = %v", got)
	}

	m.IncSelection("learning_strategy", true)
	m.IncSelection("learning_strategy", false)
	if got := testutil.ToFloat64(m.selections.WithLabelValues("learning_strategy", "explore")); got != 1 {
		t.Fatalf("explore selections = %v", got)
	}

	m.ObserveReward("junk-a", false, 0)
	m.ObserveReward("junk-b", false, 0)
	m.ObserveReward("content_selection", true, 0.9)
	if got := testutil.ToFloat64(m.rewards.WithLabelValues(UnknownPolicyLabel, "ignored")); got != 2 {
		t.Fatalf("ignored rewards = %v", got)
	}
	if got := testutil.CollectAndCount(m.rewards); got != 2 {
		t.Fatalf("reward series = %d, want 2", got)
	}
	if got := testutil.CollectAndCount(m.rewardValue); got != 1 {
		t.Fatalf("reward histograms = %d", got)
	}

	m.SetActiveLearners(7)
	if got := testutil.ToFloat64(m.activeLearners); got != 7 {
		t.Fatalf("active learners = %v", got)
	}

	m.ObserveAPI("", "", "", "", time.Millisecond)
	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("unknown", "UNKNOWN", "unknown", "0")); got != 1 {
		t.Fatalf("api requests = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.IncForecast("high")
	m.ObserveCheckpoint("ok", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{`edusense_forecasts_total{risk="high"} 1`, "edusense_checkpoints_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.IncTrainingExample()
	if got := testutil.ToFloat64(b.trainingExamples); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}
