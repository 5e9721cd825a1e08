package learner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/domain"
	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/dbctx"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type EngineSnapshotRepo interface {
	// Create stores a new snapshot at the learner's next version.
	Create(dbc dbctx.Context, learnerID uuid.UUID, knowledge, policies []byte) (*types.EngineSnapshot, error)
	GetLatest(dbc dbctx.Context, learnerID uuid.UUID) (*types.EngineSnapshot, error)
	ListVersions(dbc dbctx.Context, learnerID uuid.UUID, limit int) ([]*types.EngineSnapshot, error)
	// Prune soft-deletes all but the newest keep snapshots of a learner.
	Prune(dbc dbctx.Context, learnerID uuid.UUID, keep int) (int64, error)
}

type engineSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEngineSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) EngineSnapshotRepo {
	return &engineSnapshotRepo{
		db:  db,
		log: baseLog.With("repo", "EngineSnapshotRepo"),
	}
}

func (r *engineSnapshotRepo) Create(dbc dbctx.Context, learnerID uuid.UUID, knowledge, policies []byte) (*types.EngineSnapshot, error) {
	if learnerID == uuid.Nil {
		return nil, fmt.Errorf("learner id required: %w", pkgerrors.ErrInvalidArgument)
	}
	run := func(tx *gorm.DB) (*types.EngineSnapshot, error) {
		var latest int
		if err := tx.WithContext(dbc.Ctx).
			Model(&types.EngineSnapshot{}).
			Unscoped().
			Where("learner_id = ?", learnerID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		row := &types.EngineSnapshot{
			ID:            uuid.New(),
			LearnerID:     learnerID,
			Version:       latest + 1,
			KnowledgeJSON: datatypes.JSON(knowledge),
			PoliciesJSON:  datatypes.JSON(policies),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
			return nil, err
		}
		return row, nil
	}

	if dbc.Tx != nil {
		return run(dbc.Tx)
	}
	var out *types.EngineSnapshot
	err := r.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		row, err := run(tx)
		out = row
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *engineSnapshotRepo) GetLatest(dbc dbctx.Context, learnerID uuid.UUID) (*types.EngineSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.EngineSnapshot
	err := transaction.WithContext(dbc.Ctx).
		Where("learner_id = ?", learnerID).
		Order("version DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("snapshot for learner %s: %w", learnerID, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *engineSnapshotRepo) ListVersions(dbc dbctx.Context, learnerID uuid.UUID, limit int) ([]*types.EngineSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*types.EngineSnapshot{}
	if learnerID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Select("id", "learner_id", "version", "created_at", "updated_at").
		Where("learner_id = ?", learnerID).
		Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *engineSnapshotRepo) Prune(dbc dbctx.Context, learnerID uuid.UUID, keep int) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || keep < 1 {
		return 0, nil
	}
	var versions []int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.EngineSnapshot{}).
		Where("learner_id = ?", learnerID).
		Order("version DESC").
		Offset(keep - 1).
		Limit(1).
		Pluck("version", &versions).Error; err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	cutoff := versions[0]
	res := transaction.WithContext(dbc.Ctx).
		Where("learner_id = ? AND version < ?", learnerID, cutoff).
		Delete(&types.EngineSnapshot{})
	if res.Error != nil {
		return 0, res.Error
	}
	r.log.Debug("pruned engine snapshots", "learner_id", learnerID.String(), "removed", res.RowsAffected, "kept_from", cutoff)
	return res.RowsAffected, nil
}
