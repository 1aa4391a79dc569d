package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/governance/store"
)

func newTestRegistry() *Registry {
	return New(store.NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func reviewCtx(role string) domain.TransitionContext {
	return domain.TransitionContext{Actor: "tester", Role: role, AuthType: "test"}
}

func TestProcessClassification_CreatesRun(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	status, duplicate, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: true}, "system", "auto", "api_key")
	if err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}
	if duplicate {
		t.Fatalf("first call should not be flagged duplicate")
	}
	if status != domain.StatusNeedsReview {
		t.Fatalf("status=%s, want needs_review", status)
	}
}

func TestProcessClassification_IdempotentResubmit(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	first, _, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: true}, "system", "auto", "api_key")
	if err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}

	second, duplicate, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{ErrorOccurred: true}, "system", "auto", "api_key")
	if err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}
	if !duplicate {
		t.Fatalf("second call should be flagged duplicate")
	}
	if first != second {
		t.Fatalf("first=%s second=%s, want equal (idempotent)", first, second)
	}

	trail, _, _ := r.GetAuditTrail(ctx, "run-1")
	if len(trail) != 0 {
		t.Fatalf("history must not grow on duplicate resubmit")
	}
}

func TestManualReviewAction(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	if _, _, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: true}, "system", "auto", "api_key"); err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}

	status, err := r.ManualReviewAction(ctx, "run-1", "approve", reviewCtx("reviewer"))
	if err != nil {
		t.Fatalf("ManualReviewAction() err=%v", err)
	}
	if status != domain.StatusApproved {
		t.Fatalf("status=%s, want approved", status)
	}

	_, err = r.ManualReviewAction(ctx, "run-1", "reject", reviewCtx("reviewer"))
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("err=%v, want ErrIllegalTransition", err)
	}
}

func TestManualReviewAction_InvalidAction(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	if _, _, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: true}, "system", "auto", "api_key"); err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}
	_, err := r.ManualReviewAction(ctx, "run-1", "delete", reviewCtx("reviewer"))
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("err=%v, want ErrInvalidAction", err)
	}
}

func TestManualReviewAction_RunNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.ManualReviewAction(ctx, "missing", "approve", reviewCtx("reviewer"))
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("err=%v, want ErrRunNotFound", err)
	}
}

func TestAdminOverride_RequiresAdminRole(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	if _, _, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: true}, "system", "auto", "api_key"); err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}

	_, err := r.AdminOverride(ctx, "run-1", domain.StatusRejected, reviewCtx("reviewer"))
	if !errors.Is(err, domain.ErrAdminRoleRequired) {
		t.Fatalf("err=%v, want ErrAdminRoleRequired", err)
	}

	status, err := r.AdminOverride(ctx, "run-1", domain.StatusRejected, reviewCtx("admin"))
	if err != nil {
		t.Fatalf("AdminOverride() err=%v", err)
	}
	if status != domain.StatusRejected {
		t.Fatalf("status=%s, want rejected", status)
	}
}

func TestForceStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	if _, _, err := r.ProcessClassification(ctx, "run-1", domain.ClassificationResult{HITLRequired: false}, "system", "auto", "api_key"); err != nil {
		t.Fatalf("ProcessClassification() err=%v", err)
	}

	if err := r.ForceStatus(ctx, "run-1", domain.StatusNeedsReview, true); err != nil {
		t.Fatalf("ForceStatus() err=%v", err)
	}

	status, ok, err := r.GetStatus(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetStatus() err=%v ok=%v", err, ok)
	}
	if status != domain.StatusNeedsReview {
		t.Fatalf("status=%s, want needs_review", status)
	}
}

func TestForceStatus_RunNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	if err := r.ForceStatus(ctx, "missing", domain.StatusNeedsReview, true); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("err=%v, want ErrRunNotFound", err)
	}
}

func TestGetStatus_MissingRun(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, ok, err := r.GetStatus(ctx, "missing")
	if err != nil {
		t.Fatalf("GetStatus() err=%v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing run")
	}
}
