package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/clients/redis"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/data/repos"
	types "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/domain"
	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/dbctx"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

// LearnerSnapshot is the serialized state of one learner's engines.
type LearnerSnapshot struct {
	LearnerID uuid.UUID       `json:"learnerId"`
	Version   int             `json:"version"`
	Knowledge json.RawMessage `json:"knowledge"`
	Policies  json.RawMessage `json:"policies"`
	CreatedAt time.Time       `json:"createdAt"`
}

type SnapshotStore interface {
	// Load returns the newest snapshot or an ErrNotFound error.
	Load(ctx context.Context, learnerID uuid.UUID) (*LearnerSnapshot, error)
	Save(ctx context.Context, learnerID uuid.UUID, knowledge, policies []byte) (*LearnerSnapshot, error)
}

// SnapshotHistory is implemented by stores that keep prior versions.
type SnapshotHistory interface {
	Versions(ctx context.Context, learnerID uuid.UUID, limit int) ([]SnapshotVersion, error)
}

type SnapshotVersion struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

type snapshotStore struct {
	repo  repos.EngineSnapshotRepo
	cache redis.SnapshotCache
	keep  int
	log   *logger.Logger
}

// NewSnapshotStore reads through cache (which may be nil) to repo. Cache
// failures are logged and never fail a call. When keep > 0 each save prunes
// the learner's history to the newest keep versions.
func NewSnapshotStore(repo repos.EngineSnapshotRepo, cache redis.SnapshotCache, keep int, baseLog *logger.Logger) SnapshotStore {
	return &snapshotStore{
		repo:  repo,
		cache: cache,
		keep:  keep,
		log:   baseLog.With("service", "SnapshotStore"),
	}
}

func (s *snapshotStore) Load(ctx context.Context, learnerID uuid.UUID) (*LearnerSnapshot, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, learnerID)
		switch {
		case err != nil:
			s.log.Warn("snapshot cache read failed", "learner_id", learnerID.String(), "error", err)
		case ok:
			var snap LearnerSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
			s.log.Warn("snapshot cache entry unreadable", "learner_id", learnerID.String())
		}
	}

	row, err := s.repo.GetLatest(dbctx.Context{Ctx: ctx}, learnerID)
	if err != nil {
		return nil, err
	}
	snap := fromRow(row)
	s.fill(ctx, snap)
	return snap, nil
}

func (s *snapshotStore) Save(ctx context.Context, learnerID uuid.UUID, knowledge, policies []byte) (*LearnerSnapshot, error) {
	row, err := s.repo.Create(dbctx.Context{Ctx: ctx}, learnerID, knowledge, policies)
	if err != nil {
		return nil, err
	}
	snap := fromRow(row)
	s.fill(ctx, snap)
	if s.keep > 0 {
		if n, err := s.repo.Prune(dbctx.Context{Ctx: ctx}, learnerID, s.keep); err != nil {
			s.log.Warn("snapshot prune failed", "learner_id", learnerID.String(), "error", err)
		} else if n > 0 {
			s.log.Debug("snapshots pruned", "learner_id", learnerID.String(), "removed", n)
		}
	}
	return snap, nil
}

func (s *snapshotStore) Versions(ctx context.Context, learnerID uuid.UUID, limit int) ([]SnapshotVersion, error) {
	rows, err := s.repo.ListVersions(dbctx.Context{Ctx: ctx}, learnerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotVersion, 0, len(rows))
	for _, r := range rows {
		out = append(out, SnapshotVersion{Version: r.Version, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *snapshotStore) fill(ctx context.Context, snap *LearnerSnapshot) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err == nil {
		err = s.cache.Set(ctx, snap.LearnerID, raw)
	}
	if err != nil {
		s.log.Warn("snapshot cache write failed", "learner_id", snap.LearnerID.String(), "error", err)
	}
}

func fromRow(row *types.EngineSnapshot) *LearnerSnapshot {
	return &LearnerSnapshot{
		LearnerID: row.LearnerID,
		Version:   row.Version,
		Knowledge: json.RawMessage(row.KnowledgeJSON),
		Policies:  json.RawMessage(row.PoliciesJSON),
		CreatedAt: row.CreatedAt,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, pkgerrors.ErrNotFound)
}
