package runs

import (
	"context"
	"sync"

	"github.com/esshva/quinn/internal/model"
)

// DealSource supplies the per-deal input context a run needs before its
// first stage. Implementations sit in front of whatever actually stores
// deals (a database, a CRM, local fixtures).
type DealSource interface {
	// Deal returns the deal record. An error here is fatal for the run.
	Deal(ctx context.Context, dealID string) (model.Deal, error)
	// Documents returns the combined processed text of the deal's
	// documents. Qualification runs fail fast when it is empty.
	Documents(ctx context.Context, dealID string) (model.DocumentBundle, error)
	// Requirements returns previously extracted requirements, used by the
	// proposal flow.
	Requirements(ctx context.Context, dealID string) ([]model.Requirement, error)
	// Communications returns recent client communications, newest first,
	// used by the monitoring flow.
	Communications(ctx context.Context, dealID string) ([]model.Communication, error)
}

// Roster supplies the capability snapshot and the optional organization
// profile. A failure is degraded input, never a run failure.
type Roster interface {
	Capabilities(ctx context.Context) ([]model.CapabilityRecord, error)
	Profile(ctx context.Context) (model.OrgProfile, error)
}

// AssignmentStore persists staffing assignments. Apply supersedes the
// deal's previous auto assignments with the new plan; manual assignments
// are never touched.
type AssignmentStore interface {
	Apply(ctx context.Context, dealID string, plan []model.Assignment) error
	List(ctx context.Context, dealID string) ([]model.Assignment, error)
}

// MemoryAssignments is the in-process AssignmentStore.
type MemoryAssignments struct {
	mu     sync.Mutex
	byDeal map[string][]model.Assignment
}

// NewMemoryAssignments creates an empty in-memory assignment store.
func NewMemoryAssignments() *MemoryAssignments {
	return &MemoryAssignments{byDeal: make(map[string][]model.Assignment)}
}

// Apply replaces the deal's auto assignments with the plan. Manual
// assignments keep their position ahead of the new auto block.
func (m *MemoryAssignments) Apply(_ context.Context, dealID string, plan []model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []model.Assignment
	for _, a := range m.byDeal[dealID] {
		if a.AssignedBy == model.AssignedManual {
			kept = append(kept, a)
		}
	}
	m.byDeal[dealID] = append(kept, plan...)
	return nil
}

// List returns a copy of the deal's assignments.
func (m *MemoryAssignments) List(_ context.Context, dealID string) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Assignment, len(m.byDeal[dealID]))
	copy(out, m.byDeal[dealID])
	return out, nil
}

// AddManual records a human staffing choice. Manual assignments survive
// every subsequent Apply.
func (m *MemoryAssignments) AddManual(_ context.Context, a model.Assignment) {
	a.AssignedBy = model.AssignedManual
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDeal[a.DealID] = append(m.byDeal[a.DealID], a)
}
