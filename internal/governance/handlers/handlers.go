// Package handlers implements the Review/Admin Transition handlers
// (C6) and the /run and /debug HTTP surface described in spec §7,
// wired onto the Governance Gate and Run Registry.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/governance/audit"
	"github.com/novapact/gcu-go/internal/governance/gate"
	"github.com/novapact/gcu-go/internal/governance/registry"
	"github.com/novapact/gcu-go/internal/platform/auth"
)

type API struct {
	logger   *slog.Logger
	gate     *gate.Gate
	registry *registry.Registry
	audit    audit.Appender
}

func New(logger *slog.Logger, g *gate.Gate, reg *registry.Registry, aud audit.Appender) *API {
	return &API{logger: logger, gate: g, registry: reg, audit: aud}
}

func (api *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", api.handleHealth)
	mux.HandleFunc("POST /run", api.handleRun)
	mux.HandleFunc("POST /review/{run_id}", api.handleReview)
	mux.HandleFunc("POST /admin/override/{run_id}", api.handleAdminOverride)
	mux.HandleFunc("GET /debug/status/{run_id}", api.handleDebugStatus)
	mux.HandleFunc("GET /debug/audit/{run_id}", api.handleDebugAudit)
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type runRequest struct {
	Capability string `json:"capability"`
	RunID      string `json:"run_id,omitempty"`
	Payload    struct {
		Filename string `json:"filename"`
		Text     string `json:"text"`
	} `json:"payload"`
	Actor    string `json:"actor"`
	Role     string `json:"role"`
	AuthType string `json:"auth_type"`
}

func (api *API) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.Actor) == "" || strings.TrimSpace(req.Role) == "" {
		api.writeError(w, http.StatusBadRequest, "actor_and_role_required", nil)
		return
	}

	resp, err := api.gate.HandleRun(r.Context(), gate.RunRequest{
		RunID:      req.RunID,
		Capability: req.Capability,
		Payload:    gate.Payload{Filename: req.Payload.Filename, Text: req.Payload.Text},
		Actor:      req.Actor,
		Role:       req.Role,
		AuthType:   req.AuthType,
	})
	if err != nil {
		api.writeCoreError(w, err)
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":           resp.RunID,
		"status":           resp.Status,
		"needs_review":     resp.NeedsReview,
		"classification":   resp.Classification,
		"confidence":       resp.Confidence,
		"explainability":   resp.Explainability,
		"governance_audit": resp.GovernanceAudit,
	})
}

type reviewRequest struct {
	Action   string `json:"action"`
	Actor    string `json:"actor"`
	Role     string `json:"role"`
	AuthType string `json:"auth_type"`
	Reason   string `json:"reason,omitempty"`
}

func (api *API) handleReview(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, http.StatusBadRequest, "run_id_required", nil)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if !auth.HasAtLeast([]string{req.Role}, auth.RoleReviewer) {
		api.writeError(w, http.StatusForbidden, "reviewer_role_required", auth.ErrForbidden)
		return
	}

	transitionCtx := domain.TransitionContext{
		Actor:     req.Actor,
		Role:      req.Role,
		AuthType:  req.AuthType,
		Timestamp: time.Now().UTC(),
		Reason:    req.Reason,
	}

	status, err := api.registry.ManualReviewAction(r.Context(), runID, req.Action, transitionCtx)
	if err != nil {
		api.writeCoreError(w, err)
		return
	}

	api.auditAppend(runID, domain.EventGovReviewAction, map[string]any{
		"action": req.Action,
		"actor":  req.Actor,
		"status": string(status),
	})

	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"status": status,
		"action": req.Action,
		"actor":  req.Actor,
	})
}

type adminOverrideRequest struct {
	TargetStatus string `json:"target_status"`
	Actor        string `json:"actor"`
	Role         string `json:"role"`
	AuthType     string `json:"auth_type"`
	Reason       string `json:"reason,omitempty"`
}

func (api *API) handleAdminOverride(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, http.StatusBadRequest, "run_id_required", nil)
		return
	}

	var req adminOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}

	target, err := domain.ParseStatus(req.TargetStatus)
	if err != nil || (target != domain.StatusApproved && target != domain.StatusRejected) {
		api.writeError(w, http.StatusBadRequest, "invalid_target_status", err)
		return
	}
	if !auth.HasAtLeast([]string{req.Role}, auth.RoleAdmin) {
		api.writeError(w, http.StatusForbidden, "admin_role_required", auth.ErrForbidden)
		return
	}

	transitionCtx := domain.TransitionContext{
		Actor:     req.Actor,
		Role:      req.Role,
		AuthType:  req.AuthType,
		Timestamp: time.Now().UTC(),
		Reason:    req.Reason,
	}

	status, err := api.registry.AdminOverride(r.Context(), runID, target, transitionCtx)
	if err != nil {
		api.writeCoreError(w, err)
		return
	}

	api.auditAppend(runID, domain.EventGovAdminOverride, map[string]any{
		"target_status": string(target),
		"actor":         req.Actor,
		"status":        string(status),
	})

	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":         runID,
		"status":         status,
		"actor":          req.Actor,
		"role":           req.Role,
		"admin_override": true,
	})
}

func (api *API) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	status, ok, err := api.registry.GetStatus(r.Context(), runID)
	if err != nil {
		api.writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"status": status,
		"exists": ok,
	})
}

func (api *API) handleDebugAudit(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	entries, err := api.audit.Read(runID)
	if err != nil {
		api.writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if len(entries) == 0 {
		api.writeError(w, http.StatusNotFound, "no_audit_trail", nil)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":                runID,
		"governance_audit_path": api.audit.Path(runID),
		"audit_trail":           entries,
		"count":                 len(entries),
	})
}

func (api *API) auditAppend(runID string, event domain.AuditEvent, payload map[string]any) {
	if err := api.audit.Append(runID, event, payload); err != nil {
		api.logger.Warn("audit append failed", "run_id", runID, "event", event, "error", err)
	}
}

// writeCoreError maps the governance core's sentinel errors to the HTTP
// status codes in the error taxonomy of spec §8.
func (api *API) writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadCapability):
		api.writeError(w, http.StatusBadRequest, "bad_capability", err)
	case errors.Is(err, domain.ErrInvalidAction):
		api.writeError(w, http.StatusBadRequest, "invalid_action", err)
	case errors.Is(err, domain.ErrIllegalTransition):
		api.writeError(w, http.StatusBadRequest, "illegal_transition", err)
	case errors.Is(err, domain.ErrRunNotFound):
		api.writeError(w, http.StatusNotFound, "run_not_found", err)
	case errors.Is(err, domain.ErrAdminRoleRequired):
		api.writeError(w, http.StatusForbidden, "admin_role_required", err)
	case errors.Is(err, domain.ErrAdminOverrideRejected):
		api.writeError(w, http.StatusForbidden, "admin_override_rejected", err)
	case errors.Is(err, domain.ErrManifestMissing):
		api.writeError(w, http.StatusInternalServerError, "manifest_missing", err)
	case errors.Is(err, domain.ErrPolicyDenied):
		api.writeError(w, http.StatusInternalServerError, "policy_denied", err)
	case errors.Is(err, domain.ErrCorruptedState):
		api.writeError(w, http.StatusInternalServerError, "corrupted_state", err)
	case errors.Is(err, domain.ErrClassifierFailure):
		api.writeError(w, http.StatusInternalServerError, "classifier_failure", err)
	default:
		api.writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *API) writeError(w http.ResponseWriter, status int, code string, err error) {
	body := map[string]any{"error": code}
	if err != nil {
		body["detail"] = err.Error()
	}
	api.writeJSON(w, status, body)
}
