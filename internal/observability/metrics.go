package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/envutil"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	knowledgeUpdates *prometheus.CounterVec
	selections       *prometheus.CounterVec
	rewards          *prometheus.CounterVec
	rewardValue      *prometheus.HistogramVec
	forecasts        *prometheus.CounterVec
	trainingExamples prometheus.Counter
	activeLearners   prometheus.Gauge
	checkpoints      *prometheus.CounterVec
	checkpointTime   prometheus.Histogram

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Init builds the process-wide Metrics once. It returns nil when metrics are
// disabled.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		log.Info("metrics initialized")
	})
	return instance
}

// NewMetrics registers a fresh set of collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_api_requests_total",
			Help: "Total API requests by route group/method/route/status.",
		}, []string{"group", "method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edusense_api_request_duration_seconds",
			Help:    "API request latency in seconds by route group/method/route/status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"group", "method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "edusense_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		knowledgeUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_knowledge_updates_total",
			Help: "Knowledge updates by correctness and recommended action.",
		}, []string{"correct", "action"}),
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_policy_selections_total",
			Help: "Action selections by policy and mode.",
		}, []string{"policy", "mode"}),
		rewards: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_policy_rewards_total",
			Help: "Observed rewards by policy and outcome.",
		}, []string{"policy", "outcome"}),
		rewardValue: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edusense_policy_reward_value",
			Help:    "Distribution of applied rewards by policy.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"policy"}),
		forecasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_forecasts_total",
			Help: "Performance forecasts by risk level.",
		}, []string{"risk"}),
		trainingExamples: f.NewCounter(prometheus.CounterOpts{
			Name: "edusense_forecast_training_examples_total",
			Help: "Training examples accepted by the forecast engine.",
		}),
		activeLearners: f.NewGauge(prometheus.GaugeOpts{
			Name: "edusense_active_learners",
			Help: "Learners with engines loaded in memory.",
		}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edusense_checkpoints_total",
			Help: "Learner snapshot checkpoints by status.",
		}, []string{"status"}),
		checkpointTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edusense_checkpoint_duration_seconds",
			Help:    "Duration of a single learner checkpoint.",
			Buckets: prometheus.DefBuckets,
		}),
		pgStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edusense_db_pool",
			Help: "Database connection pool stats.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "edusense_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "edusense_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

func (m *Metrics) ObserveAPI(group, method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if group == "" {
		group = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(group, method, route, status).Inc()
	m.apiLatency.WithLabelValues(group, method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncKnowledgeUpdate(correct bool, action string) {
	if m == nil {
		return
	}
	m.knowledgeUpdates.WithLabelValues(strconv.FormatBool(correct), action).Inc()
}

func (m *Metrics) IncSelection(policyID string, exploration bool) {
	if m == nil {
		return
	}
	mode := "exploit"
	if exploration {
		mode = "explore"
	}
	m.selections.WithLabelValues(policyID, mode).Inc()
}

// UnknownPolicyLabel replaces the policy id of rewards that were not applied.
// Those ids come from clients and would otherwise mint unbounded series.
const UnknownPolicyLabel = "unknown"

func (m *Metrics) ObserveReward(policyID string, applied bool, reward float64) {
	if m == nil {
		return
	}
	if !applied {
		m.rewards.WithLabelValues(UnknownPolicyLabel, "ignored").Inc()
		return
	}
	m.rewards.WithLabelValues(policyID, "applied").Inc()
	m.rewardValue.WithLabelValues(policyID).Observe(reward)
}

func (m *Metrics) IncForecast(risk string) {
	if m == nil {
		return
	}
	m.forecasts.WithLabelValues(risk).Inc()
}

func (m *Metrics) IncTrainingExample() {
	if m == nil {
		return
	}
	m.trainingExamples.Inc()
}

func (m *Metrics) SetActiveLearners(n int) {
	if m == nil {
		return
	}
	m.activeLearners.Set(float64(n))
}

func (m *Metrics) ObserveCheckpoint(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.checkpoints.WithLabelValues(status).Inc()
	m.checkpointTime.Observe(dur.Seconds())
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("metrics: db stats unavailable", "error", err)
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					log.Warn("metrics: redis ping failed", "error", err)
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
