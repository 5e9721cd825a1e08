package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http"
	httpH "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http/handlers"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Learner  *httpH.LearnerHandler
	Forecast *httpH.ForecastHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")

	checks := []httpH.ReadyCheck{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if cache := clients.SnapshotCache; cache != nil {
		checks = append(checks, httpH.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return cache.Client().Ping(ctx).Err() },
		})
	}

	return Handlers{
		Health:   httpH.NewHealthHandler(checks...),
		Learner:  httpH.NewLearnerHandler(services.LearnerModel),
		Forecast: httpH.NewForecastHandler(services.LearnerModel),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		LearnerHandler:  handlers.Learner,
		ForecastHandler: handlers.Forecast,
		HealthHandler:   handlers.Health,
	})
}
