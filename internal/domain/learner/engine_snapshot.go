package learner

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EngineSnapshot is one persisted checkpoint of a learner's knowledge and
// policy engines. Versions increase per learner; the highest is the restore
// point.
type EngineSnapshot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LearnerID uuid.UUID `gorm:"type:uuid;column:learner_id;not null;index:idx_engine_snapshot,unique,priority:1" json:"learner_id"`
	Version   int       `gorm:"column:version;not null;index:idx_engine_snapshot,unique,priority:2" json:"version"`

	KnowledgeJSON datatypes.JSON `gorm:"column:knowledge_json;type:jsonb" json:"knowledge_json"`
	PoliciesJSON  datatypes.JSON `gorm:"column:policies_json;type:jsonb" json:"policies_json"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (EngineSnapshot) TableName() string { return "engine_snapshot" }
