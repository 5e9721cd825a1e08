package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/ctxutil"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/envutil"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type rollingSum struct {
	values []float64
	idx    int
	filled int
	total  float64
}

func newRollingSum(size int) *rollingSum {
	if size < 1 {
		size = 1
	}
	return &rollingSum{values: make([]float64, size)}
}

func (r *rollingSum) add(v float64) {
	r.total += v - r.values[r.idx]
	r.values[r.idx] = v
	r.idx++
	if r.idx >= len(r.values) {
		r.idx = 0
	}
	if r.filled < len(r.values) {
		r.filled++
	}
}

func (r *rollingSum) full() bool { return r.filled == len(r.values) }

func (r *rollingSum) mean() float64 {
	if r.filled == 0 {
		return 0
	}
	return r.total / float64(r.filled)
}

type DriftConfig struct {
	// Window is the number of recent training examples the error is averaged over.
	Window int
	// Threshold is the mean absolute error, in score points, that raises an alert.
	Threshold   float64
	Webhook     string
	MinInterval time.Duration
}

func DriftConfigFromEnv() DriftConfig {
	return DriftConfig{
		Window:      envutil.Int("FORECAST_DRIFT_WINDOW", 50),
		Threshold:   envutil.Float("FORECAST_DRIFT_MAE_THRESHOLD", 20),
		Webhook:     envutil.String("FORECAST_DRIFT_ALERT_WEBHOOK_URL", ""),
		MinInterval: envutil.Duration("FORECAST_DRIFT_ALERT_MIN_INTERVAL", 10*time.Minute),
	}
}

type DriftAlert struct {
	Title     string         `json:"title"`
	MAE       float64        `json:"mae"`
	Threshold float64        `json:"threshold"`
	Window    int            `json:"window"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// DriftMonitor compares forecast scores with the actual scores reported as
// training examples. A nil *DriftMonitor ignores every observation.
type DriftMonitor struct {
	cfg    DriftConfig
	log    *logger.Logger
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	errors    *rollingSum
	lastAlert time.Time

	inflight sync.WaitGroup
}

const alertTimeout = 5 * time.Second

func NewDriftMonitor(cfg DriftConfig, log *logger.Logger) *DriftMonitor {
	if cfg.Window < 1 {
		cfg.Window = 50
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 20
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 10 * time.Minute
	}
	if log != nil {
		log = log.With("component", "ForecastDrift")
	}
	return &DriftMonitor{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: alertTimeout},
		now:    time.Now,
		errors: newRollingSum(cfg.Window),
	}
}

// Observe records one predicted/actual pair and reports whether the window
// error is over threshold. Alerts are posted at most once per MinInterval, in
// the background, so the caller never waits on the webhook.
func (d *DriftMonitor) Observe(ctx context.Context, predicted, actual float64) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	d.errors.add(math.Abs(predicted - actual))
	mae := d.errors.mean()
	drifting := d.errors.full() && mae > d.cfg.Threshold
	send := false
	if drifting && (d.lastAlert.IsZero() || d.now().Sub(d.lastAlert) >= d.cfg.MinInterval) {
		d.lastAlert = d.now()
		send = true
	}
	d.mu.Unlock()

	if !drifting {
		return false
	}
	if send {
		if d.log != nil {
			d.log.Warn("forecast drift detected", "mae", mae, "threshold", d.cfg.Threshold, "window", d.cfg.Window)
		}
		if d.cfg.Webhook != "" {
			body := d.alertBody(ctx, mae)
			postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctxutil.Default(ctx)), alertTimeout)
			d.inflight.Add(1)
			go func() {
				defer d.inflight.Done()
				defer cancel()
				d.post(postCtx, body)
			}()
		}
	}
	return true
}

// Wait blocks until alerts already handed to the background are delivered or
// have failed.
func (d *DriftMonitor) Wait() {
	if d == nil {
		return
	}
	d.inflight.Wait()
}

// MAE is the mean absolute error over the observations currently in the window.
func (d *DriftMonitor) MAE() float64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errors.mean()
}

func (d *DriftMonitor) alertBody(ctx context.Context, mae float64) []byte {
	meta := map[string]any{}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			meta["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			meta["request_id"] = td.RequestID
		}
		if td.LearnerID != "" {
			meta["learner_id"] = td.LearnerID
		}
	}
	body, _ := json.Marshal(DriftAlert{
		Title:     "Forecast drift detected",
		MAE:       mae,
		Threshold: d.cfg.Threshold,
		Window:    d.cfg.Window,
		Meta:      meta,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	return body
}

func (d *DriftMonitor) post(ctx context.Context, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Webhook, bytes.NewReader(body))
	if err != nil {
		if d.log != nil {
			d.log.Warn("forecast drift alert request build failed", "error", err)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		if d.log != nil {
			d.log.Warn("forecast drift alert post failed", "error", err)
		}
		return
	}
	_ = resp.Body.Close()
	if d.log != nil {
		d.log.Info("forecast drift alert sent", "status", resp.StatusCode)
	}
}
