// Package statemachine implements the Status State Machine (C2): a
// per-run automaton enforcing legal transitions and the admin-override
// rule, with an in-memory transition history.
package statemachine

import (
	"fmt"
	"sync"

	"github.com/novapact/gcu-go/internal/domain"
)

// legalTransitions is the normal-path table from spec §4.2. Terminal
// statuses have no entries and therefore no outgoing normal transitions.
var legalTransitions = map[domain.Status][]domain.Status{
	domain.StatusOK:           {domain.StatusNeedsReview, domain.StatusError},
	domain.StatusNeedsReview:  {domain.StatusApproved, domain.StatusRejected},
}

// Machine is a single run's transition automaton. Zero value is not
// usable; construct with New or Restore.
type Machine struct {
	mu      sync.Mutex
	current domain.Status
	history []domain.TransitionRecord
}

// New constructs a machine at an initial status with empty history.
// Per spec §4.4, creation is not itself a transition, so no history
// entry is produced here.
func New(initial domain.Status) *Machine {
	return &Machine{current: initial}
}

// Restore rebuilds a machine from persisted state, validating the
// status tag. Used by the registry on a loaded RunState before it
// applies a transition.
func Restore(current domain.Status, history []domain.TransitionRecord) (*Machine, error) {
	if !current.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrCorruptedState, current)
	}
	for _, rec := range history {
		if !rec.From.Valid() || !rec.To.Valid() {
			return nil, fmt.Errorf("%w: history entry has unknown status", domain.ErrCorruptedState)
		}
	}
	hist := make([]domain.TransitionRecord, len(history))
	copy(hist, history)
	return &Machine{current: current, history: hist}, nil
}

// Current returns the machine's current status. Safe for concurrent
// use; it holds the machine's mutex only for the read.
func (m *Machine) Current() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanTransitionTo reports whether target is reachable from the current
// status via the normal-path table, ignoring admin override.
func (m *Machine) CanTransitionTo(target domain.Status) bool {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	return canTransition(current, target)
}

func canTransition(current, target domain.Status) bool {
	for _, allowed := range legalTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// History returns an immutable snapshot of the transition records
// recorded so far.
func (m *Machine) History() []domain.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Transition attempts to move the machine to target under ctx. When
// isAdminOverride is false the normal-path table governs; when true,
// target must be approved or rejected and ctx.Role must be "admin".
// current == target is treated as an idempotent no-op per spec §4.2.
func (m *Machine) Transition(target domain.Status, ctx domain.TransitionContext, isAdminOverride bool) (domain.Status, error) {
	if !target.Valid() {
		return "", fmt.Errorf("%w: unknown target status %q", domain.ErrCorruptedState, target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == target {
		return m.current, nil
	}

	if isAdminOverride {
		if target != domain.StatusApproved && target != domain.StatusRejected {
			return "", fmt.Errorf("%w: admin override target must be approved or rejected, got %q", domain.ErrAdminOverrideRejected, target)
		}
		// Invariant 3: only non-terminal sources, plus the approved<->rejected
		// exception of invariant 5, may be admin-overridden. error is
		// terminal and not part of that exception.
		if m.current == domain.StatusError {
			return "", fmt.Errorf("%w: cannot override terminal status %q", domain.ErrAdminOverrideRejected, m.current)
		}
		if ctx.Role != "admin" {
			return "", fmt.Errorf("%w: got role %q", domain.ErrAdminRoleRequired, ctx.Role)
		}
	} else if !canTransition(m.current, target) {
		return "", fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, m.current, target)
	}

	m.history = append(m.history, domain.TransitionRecord{
		From:    m.current,
		To:      target,
		Context: ctx,
	})
	m.current = target
	return m.current, nil
}
