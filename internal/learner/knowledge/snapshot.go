package knowledge

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
)

var validate = validator.New()

// Snapshot is the exported form of a tracer: skill id to mastery record.
type Snapshot map[string]SkillState

// Snapshot returns a deep copy of every tracked skill.
func (t *Tracer) Snapshot() Snapshot {
	out := make(Snapshot, len(t.states))
	for id, st := range t.states {
		out[id] = *st
	}
	return out
}

func (t *Tracer) ExportStates() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// ImportStates replaces the tracer's skills with the decoded snapshot. The
// payload is parsed and validated in full first; on any error the tracer is
// left untouched.
func (t *Tracer) ImportStates(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.log.Warn("knowledge import rejected", "error", err)
		return fmt.Errorf("%w: decode knowledge snapshot: %v", pkgerrors.ErrValidation, err)
	}
	return t.Restore(snap)
}

// Restore is ImportStates for an already decoded snapshot.
func (t *Tracer) Restore(snap Snapshot) error {
	next := make(map[string]*SkillState, len(snap))
	for id, st := range snap {
		if st.SkillID == "" {
			st.SkillID = id
		}
		if st.SkillID != id {
			return fmt.Errorf("%w: skill %q keyed as %q", pkgerrors.ErrValidation, st.SkillID, id)
		}
		if err := validate.Struct(st); err != nil {
			t.log.Warn("knowledge import rejected", "skill_id", id, "error", err)
			return fmt.Errorf("%w: skill %q: %v", pkgerrors.ErrValidation, id, err)
		}
		rec := st
		next[id] = &rec
	}
	t.states = next
	return nil
}
