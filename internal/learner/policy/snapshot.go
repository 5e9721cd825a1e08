package policy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
)

var validate = validator.New()

// QEntry is one learned value in serialized form.
type QEntry struct {
	PolicyID string  `json:"policyId" validate:"required"`
	State    State   `json:"state"`
	Action   string  `json:"action"`
	Value    float64 `json:"value" validate:"gte=0,lte=1"`
}

// Snapshot is the complete learnable state of an Engine.
type Snapshot struct {
	Policies        []Policy             `json:"policies" validate:"dive"`
	QTable          []QEntry             `json:"qTable" validate:"dive"`
	RewardHistories map[string][]float64 `json:"rewardHistories" validate:"dive,dive,gte=0,lte=1"`
	ObservedRewards int                  `json:"observedRewards" validate:"gte=0"`
}

// Snapshot copies the engine state. Entries are sorted so equal engines
// serialize identically.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Policies:        e.Policies(),
		QTable:          make([]QEntry, 0, len(e.q)),
		RewardHistories: make(map[string][]float64, len(e.rewards)),
		ObservedRewards: e.observed,
	}
	for k, v := range e.q {
		s.QTable = append(s.QTable, QEntry{PolicyID: k.policy, State: k.state, Action: k.action, Value: v})
	}
	sort.Slice(s.QTable, func(i, j int) bool {
		a, b := s.QTable[i], s.QTable[j]
		if a.PolicyID != b.PolicyID {
			return a.PolicyID < b.PolicyID
		}
		if a.State != b.State {
			return a.State.less(b.State)
		}
		return a.Action < b.Action
	})
	for id, rs := range e.rewards {
		s.RewardHistories[id] = append([]float64(nil), rs...)
	}
	return s
}

func (e *Engine) ExportPolicies() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

func (e *Engine) ImportPolicies(raw []byte) error {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("%w: decode policy snapshot: %v", pkgerrors.ErrValidation, err)
	}
	return e.Restore(s)
}

// Restore validates s in full and then replaces the engine state. The four
// built-in policies always exist afterwards; ones missing from s keep their
// defaults. Q-values and histories must reference a known policy.
func (e *Engine) Restore(s Snapshot) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: policy snapshot: %v", pkgerrors.ErrValidation, err)
	}

	policies := map[string]*Policy{}
	order := []string{}
	for _, p := range defaultPolicies() {
		p := p
		policies[p.ID] = &p
		order = append(order, p.ID)
	}
	for _, p := range s.Policies {
		p := p
		if _, ok := policies[p.ID]; !ok {
			order = append(order, p.ID)
		}
		policies[p.ID] = &p
	}

	q := make(map[qKey]float64, len(s.QTable))
	for _, entry := range s.QTable {
		if _, ok := policies[entry.PolicyID]; !ok {
			return fmt.Errorf("%w: q entry for unknown policy %q", pkgerrors.ErrValidation, entry.PolicyID)
		}
		q[qKey{policy: entry.PolicyID, state: entry.State, action: entry.Action}] = entry.Value
	}
	rewards := make(map[string][]float64, len(s.RewardHistories))
	for id, rs := range s.RewardHistories {
		if _, ok := policies[id]; !ok {
			return fmt.Errorf("%w: reward history for unknown policy %q", pkgerrors.ErrValidation, id)
		}
		rewards[id] = append([]float64(nil), rs...)
	}

	e.policies = policies
	e.order = order
	e.q = q
	e.rewards = rewards
	e.observed = s.ObservedRewards
	return nil
}
