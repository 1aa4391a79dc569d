// Package registry implements the Run Registry / Manager (C4):
// orchestration of the resolver, state machine, and store, with
// idempotent run creation.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/governance/resolver"
	"github.com/novapact/gcu-go/internal/governance/statemachine"
	"github.com/novapact/gcu-go/internal/governance/store"
)

// Registry is the process-wide orchestrator described in spec §10's
// design notes: effectively a singleton constructed once at startup
// with a Store dependency, injected with an in-memory Store in tests.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

func New(s store.Store, logger *slog.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// ProcessClassification creates a run on first classification of
// run_id, or returns the existing status unchanged on any subsequent
// call (idempotency; no new history entry). On a duplicate it logs a
// duplicate-detected line itself and returns duplicate=true so the
// caller can tell the two cases apart.
func (r *Registry) ProcessClassification(ctx context.Context, runID string, result domain.ClassificationResult, actor, role, authType string) (domain.Status, bool, error) {
	existing, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return "", false, err
	}
	if ok {
		r.logger.InfoContext(ctx, "duplicate classification ignored", "run_id", runID)
		return existing.CurrentStatus, true, nil
	}

	initial := resolver.Resolve(result)
	state := domain.RunState{
		RunID:            runID,
		CurrentStatus:    initial,
		HITLRequired:     result.HITLRequired,
		ApprovalRequired: true,
		ApprovalProvided: false,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := r.store.Save(ctx, state); err != nil {
		return "", false, err
	}
	return initial, false, nil
}

// ManualReviewAction maps a review action to its target status and
// invokes the normal-path transition.
func (r *Registry) ManualReviewAction(ctx context.Context, runID string, action string, transitionCtx domain.TransitionContext) (domain.Status, error) {
	var target domain.Status
	switch action {
	case "approve":
		target = domain.StatusApproved
	case "reject":
		target = domain.StatusRejected
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAction, action)
	}
	return r.transition(ctx, runID, target, transitionCtx, false)
}

// AdminOverride pre-checks the role as defense in depth ahead of the
// state machine's own (authoritative) check, then invokes the
// admin-override transition path.
func (r *Registry) AdminOverride(ctx context.Context, runID string, target domain.Status, transitionCtx domain.TransitionContext) (domain.Status, error) {
	if transitionCtx.Role != "admin" {
		return "", fmt.Errorf("%w: got role %q", domain.ErrAdminRoleRequired, transitionCtx.Role)
	}
	return r.transition(ctx, runID, target, transitionCtx, true)
}

func (r *Registry) transition(ctx context.Context, runID string, target domain.Status, transitionCtx domain.TransitionContext, isAdminOverride bool) (domain.Status, error) {
	state, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	machine, err := statemachine.Restore(state.CurrentStatus, state.History)
	if err != nil {
		return "", err
	}

	newStatus, err := machine.Transition(target, transitionCtx, isAdminOverride)
	if err != nil {
		return "", err
	}

	state.CurrentStatus = newStatus
	state.History = machine.History()
	state.ApprovalProvided = newStatus == domain.StatusApproved
	state.UpdatedAt = time.Now().UTC()
	if err := r.store.Save(ctx, state); err != nil {
		return "", err
	}
	return newStatus, nil
}

// GetStatus returns the current status of a run, or ok=false if the
// run does not exist.
func (r *Registry) GetStatus(ctx context.Context, runID string) (domain.Status, bool, error) {
	state, ok, err := r.store.Load(ctx, runID)
	if err != nil || !ok {
		return "", ok, err
	}
	return state.CurrentStatus, true, nil
}

// ForceStatus overwrites a freshly created run's status and hitl flags
// directly, bypassing the state machine's transition rules. It exists
// only for the Governance Gate's hard-rule safety net (spec §4.5 step
// 9): a belt-and-suspenders correction applied if hitl_required is
// true but the resolver's initial status was not needs_review, which a
// correct resolver never produces but which must be recoverable if it
// ever does via a resolver regression.
func (r *Registry) ForceStatus(ctx context.Context, runID string, status domain.Status, hitlRequired bool) error {
	state, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	state.CurrentStatus = status
	state.HITLRequired = hitlRequired
	state.ApprovalRequired = hitlRequired
	state.UpdatedAt = time.Now().UTC()
	return r.store.Save(ctx, state)
}

// GetAuditTrail returns the state machine's own persisted transition
// history for a run — distinct from the C7 audit journal file, which
// is a separate append-only view surfaced through /debug/audit.
func (r *Registry) GetAuditTrail(ctx context.Context, runID string) ([]domain.TransitionRecord, bool, error) {
	state, ok, err := r.store.Load(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return state.History, true, nil
}
