package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http/handlers"
	httpMW "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http/middleware"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string

	LearnerHandler  *httpH.LearnerHandler
	ForecastHandler *httpH.ForecastHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "edusense-learner"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.RequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")

	// Learners
	if h := cfg.LearnerHandler; h != nil {
		learners := api.Group("/learners/:id")
		learners.POST("/answers", h.RecordAnswers)
		learners.POST("/skills", h.InitializeSkills)
		learners.GET("/knowledge", h.Knowledge)
		learners.GET("/knowledge/:skill", h.Skill)
		learners.POST("/knowledge/:skill/reset", h.ResetSkill)

		learners.POST("/actions/select", h.SelectAction)
		learners.POST("/actions/observe", h.ObserveOutcome)
		learners.GET("/policies", h.Policies)
		learners.GET("/policies/:policy/trajectory", h.Trajectory)

		learners.POST("/forecast", h.Forecast)
		learners.POST("/forecast/:skill", h.ForecastSkill)

		learners.GET("/snapshot", h.ExportSnapshot)
		learners.PUT("/snapshot", h.ImportSnapshot)
		learners.GET("/snapshots", h.History)
		learners.POST("/checkpoint", h.Checkpoint)
	}

	// Forecast model
	if h := cfg.ForecastHandler; h != nil {
		api.POST("/forecast/batch", h.Batch)
		api.POST("/forecast/training", h.AddTrainingExample)
		api.GET("/forecast/metrics", h.Metrics)
	}

	return r
}
