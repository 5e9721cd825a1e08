package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/domain"
)

// SeedSnapshot inserts a snapshot row at an explicit version, bypassing the
// repo's version assignment.
func SeedSnapshot(tb testing.TB, ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, version int, knowledge, policies string) *types.EngineSnapshot {
	tb.Helper()
	now := time.Now().UTC()
	row := &types.EngineSnapshot{
		ID:            uuid.New(),
		LearnerID:     learnerID,
		Version:       version,
		KnowledgeJSON: datatypes.JSON(knowledge),
		PoliciesJSON:  datatypes.JSON(policies),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed snapshot: %v", err)
	}
	return row
}
