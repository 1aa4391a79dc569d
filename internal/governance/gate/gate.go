// Package gate implements the Governance Gate (C5): the /run decision
// path that fuses classifier output, capability policy, and the
// governance core's hard rule into a single authoritative outcome.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novapact/gcu-go/internal/classifier"
	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/governance/audit"
	"github.com/novapact/gcu-go/internal/governance/registry"
	"github.com/novapact/gcu-go/internal/intake"
	"github.com/novapact/gcu-go/internal/manifest"
	"github.com/novapact/gcu-go/internal/platform/metrics"
	"github.com/novapact/gcu-go/internal/platform/policy"
)

// Config holds the runtime-configured options named in spec §7:
// capability_name, confidence_threshold, manifest_path, kill_switch.
type Config struct {
	CapabilityName      string
	ConfidenceThreshold float64
	ManifestPath        string
	KillSwitch          bool
}

// Payload is the document submitted to /run, carried inline.
type Payload struct {
	Filename string
	Text     string
}

type RunRequest struct {
	// RunID is optional; callers resubmitting the same document under
	// the same run_id get the idempotent-resubmit behavior of
	// registry.ProcessClassification. Left empty, a fresh run_id is
	// generated by the classifier.
	RunID      string
	Capability string
	Payload    Payload
	Actor      string
	Role       string
	AuthType   string
}

type RunResponse struct {
	RunID           string
	Status          domain.Status
	NeedsReview     bool
	Classification  string
	Confidence      float64
	Explainability  []domain.ExplainabilitySignal
	GovernanceAudit string
}

// Gate wires the manifest loader, classifier, document intake,
// registry, audit journal, and metrics into the 13-step /run flow of
// spec §4.5.
type Gate struct {
	cfg        Config
	classifier classifier.Classifier
	registry   *registry.Registry
	audit      audit.Appender
	metrics    *metrics.Governance
	uploader   intake.Uploader
	logger     *slog.Logger
}

func New(cfg Config, cl classifier.Classifier, reg *registry.Registry, aud audit.Appender, met *metrics.Governance, uploader intake.Uploader, logger *slog.Logger) *Gate {
	return &Gate{cfg: cfg, classifier: cl, registry: reg, audit: aud, metrics: met, uploader: uploader, logger: logger}
}

func (g *Gate) HandleRun(ctx context.Context, req RunRequest) (RunResponse, error) {
	// 1. Capability match.
	if req.Capability != g.cfg.CapabilityName {
		return RunResponse{}, fmt.Errorf("%w: %q", domain.ErrBadCapability, req.Capability)
	}

	// 2. Resolve the manifest bundle (manifest.json, policy.yaml, keywords.json).
	bundle, err := manifest.NewLoader(g.cfg.ManifestPath, req.Capability).Load()
	if err != nil {
		return RunResponse{}, err
	}

	// 3. Document intake: hash, extension/size, optional upload.
	intakeResult, err := intake.Run(ctx, g.logger, g.uploader, req.Payload.Filename, strings.NewReader(req.Payload.Text))
	if err != nil {
		return RunResponse{}, fmt.Errorf("document intake: %w", err)
	}

	// 4. Invoke the classifier.
	classifierOut, clsErr := g.classifier.Classify(req.Payload.Text, bundle.Keywords, req.RunID)

	// 5a. A classifier failure is a real error (§8: ClassifierFailure ⇒ 500),
	// not a verbatim status to return. No run is created either way.
	if clsErr != nil {
		g.metrics.ObserveOutcome(string(domain.StatusError))
		return RunResponse{}, clsErr
	}

	// 5b. Short-circuit on a classifier status outside {ok, needs_review}.
	if classifierOut.Status != domain.StatusOK && classifierOut.Status != domain.StatusNeedsReview {
		g.metrics.ObserveOutcome(string(classifierOut.Status))
		return RunResponse{
			RunID:          classifierOut.RunID,
			Status:         classifierOut.Status,
			Classification: classifierOut.Classification,
			Confidence:     classifierOut.Confidence,
		}, nil
	}

	// 6. HITL threshold, forced by the kill switch regardless of confidence.
	hitlRequired := classifierOut.Confidence < g.cfg.ConfidenceThreshold
	if g.cfg.KillSwitch {
		hitlRequired = true
	}

	// 7. Capability policy evaluation.
	if spec, ok := bundle.PolicySpec.(policy.Spec); ok {
		decision, err := policy.Evaluate(spec, policy.Context{
			Actor:      policy.ActorContext{Subject: req.Actor, Roles: []string{req.Role}},
			Document:   policy.DocumentContext{SHA256: intakeResult.SHA256, Extension: intakeResult.Extension, SizeBytes: intakeResult.SizeBytes, Classification: classifierOut.Classification, Confidence: classifierOut.Confidence},
			Capability: req.Capability,
		})
		if err != nil {
			return RunResponse{}, fmt.Errorf("%w: %v", domain.ErrManifestMissing, err)
		}
		switch decision.Effect {
		case policy.EffectDeny:
			return RunResponse{}, fmt.Errorf("%w: rule %s", domain.ErrPolicyDenied, decision.RuleID)
		case policy.EffectRequireApproval:
			hitlRequired = true
		}
	}

	runID := classifierOut.RunID
	g.auditAppend(runID, domain.EventGovConfig, map[string]any{
		"capability":           req.Capability,
		"confidence_threshold": g.cfg.ConfidenceThreshold,
		"kill_switch":          g.cfg.KillSwitch,
	})

	// 8. Build the ClassificationResult and create/look up the run.
	result := domain.ClassificationResult{Confidence: classifierOut.Confidence, HITLRequired: hitlRequired}
	initialStatus, duplicate, err := g.registry.ProcessClassification(ctx, runID, result, req.Actor, req.Role, req.AuthType)
	if err != nil {
		return RunResponse{}, err
	}
	g.auditAppend(runID, domain.EventGovStatusComputed, map[string]any{"status": string(initialStatus), "duplicate": duplicate})

	// 9. Hard rule: hitl_required without approval always wins, independent
	// of whatever status the resolver already landed on. The resolver
	// normally lands on needs_review by itself whenever hitlRequired is
	// true, but the rule is non-negotiable and must still be recorded in
	// the audit trail on that path, not only on a resolver regression.
	finalStatus := initialStatus
	if hitlRequired && !duplicate {
		if finalStatus != domain.StatusNeedsReview && finalStatus != domain.StatusError {
			finalStatus = domain.StatusNeedsReview
			if err := g.registry.ForceStatus(ctx, runID, finalStatus, hitlRequired); err != nil {
				return RunResponse{}, err
			}
		}
		g.auditAppend(runID, domain.EventGovHardRuleApplied, map[string]any{"forced_status": string(finalStatus)})
	}

	// 10/11. The flat summary was already persisted by ProcessClassification
	// (and ForceStatus, if the hard rule fired); record the journal entry.
	if !duplicate {
		g.auditAppend(runID, domain.EventGovDBPersisted, map[string]any{"status": string(finalStatus)})
	}

	// 12. Outcome metric.
	g.metrics.ObserveOutcome(string(finalStatus))

	// 13. Merged response.
	return RunResponse{
		RunID:           runID,
		Status:          finalStatus,
		NeedsReview:     finalStatus == domain.StatusNeedsReview,
		Classification:  classifierOut.Classification,
		Confidence:      classifierOut.Confidence,
		Explainability:  classifierOut.Explainability,
		GovernanceAudit: g.audit.Path(runID),
	}, nil
}

func (g *Gate) auditAppend(runID string, event domain.AuditEvent, payload map[string]any) {
	if err := g.audit.Append(runID, event, payload); err != nil {
		g.logger.Warn("audit append failed", "run_id", runID, "event", event, "error", err)
	}
}
