package app

import (
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/jobs/checkpoint"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/forecast"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/observability"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/services"
)

type Services struct {
	Snapshots    services.SnapshotStore
	LearnerModel services.LearnerModelService
	Checkpoints  *checkpoint.Scheduler
	Drift        *observability.DriftMonitor
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	store := services.NewSnapshotStore(reposet.EngineSnapshot, clients.SnapshotCache, cfg.SnapshotKeep, log)
	forecaster := forecast.NewEngine(forecast.WithLogger(log))
	drift := observability.NewDriftMonitor(observability.DriftConfigFromEnv(), log)
	learnerModel := services.NewLearnerModelService(log, store, forecaster, metrics, services.LearnerModelConfig{
		Knowledge:             cfg.Knowledge,
		PolicyTuning:          cfg.PolicyTuning,
		CheckpointConcurrency: cfg.CheckpointConcurrency,
		Drift:                 drift,
	})

	sched, err := checkpoint.NewScheduler(log, learnerModel, cfg.CheckpointCron, cfg.CheckpointTimeout)
	if err != nil {
		return Services{}, err
	}

	return Services{
		Snapshots:    store,
		LearnerModel: learnerModel,
		Checkpoints:  sched,
		Drift:        drift,
	}, nil
}
