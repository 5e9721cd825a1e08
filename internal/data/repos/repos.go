package repos

import (
	"gorm.io/gorm"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/data/repos/learner"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type EngineSnapshotRepo = learner.EngineSnapshotRepo

func NewEngineSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) EngineSnapshotRepo {
	return learner.NewEngineSnapshotRepo(db, baseLog)
}
