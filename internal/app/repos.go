package app

import (
	"gorm.io/gorm"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/data/repos"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type Repos struct {
	EngineSnapshot repos.EngineSnapshotRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		EngineSnapshot: repos.NewEngineSnapshotRepo(db, log),
	}
}
