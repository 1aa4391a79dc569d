package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/novapact/gcu-go/internal/classifier"
	"github.com/novapact/gcu-go/internal/governance/audit"
	"github.com/novapact/gcu-go/internal/governance/gate"
	"github.com/novapact/gcu-go/internal/governance/registry"
	"github.com/novapact/gcu-go/internal/governance/store"
	"github.com/novapact/gcu-go/internal/platform/metrics"
)

const testCapability = "np_document_triage"

func writeManifest(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"manifest.json": `{"capability":"np_document_triage"}`,
		"policy.yaml": `
schema: gcu.capability_policy.v1
default_effect: allow
rules:
  - id: low-confidence-review
    effect: require_approval
    when:
      all:
        - {field: document.confidence, op: lt, value: "0.5"}
`,
		"keywords.json": `{
			"high_risk_signals": [{"signal": "gdpr", "weight": 0.18}],
			"potential_risk_signals": [{"signal": "confidential", "weight": 0.12}],
			"safe_signals": [{"signal": "newsletter", "weight": -0.05}]
		}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	dir := t.TempDir()
	writeManifest(t, dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(store.NewInMemoryStore(), logger)
	journal := audit.NewFileJournal(t.TempDir())
	met := metrics.NewGovernance()

	g := gate.New(gate.Config{
		CapabilityName:      testCapability,
		ConfidenceThreshold: 0.6,
		ManifestPath:        dir,
	}, classifier.NewDefault(), reg, journal, met, nil, logger)

	return New(logger, g, reg, journal)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v (body=%s)", err, rec.Body.String())
	}
	return body
}

func TestHandleRun_ReturnsNeedsReviewAndThenApprovable(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	runBody := `{"capability":"np_document_triage","run_id":"run-1","payload":{"filename":"a.txt","text":"a plain memo"},"actor":"system","role":"auto","auth_type":"api_key"}`
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(runBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /run status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "needs_review" {
		t.Fatalf("status=%v, want needs_review", body["status"])
	}

	reviewBody := `{"action":"approve","actor":"rev@example.com","role":"reviewer","auth_type":"session"}`
	req = httptest.NewRequest(http.MethodPost, "/review/run-1", bytes.NewBufferString(reviewBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /review status=%d body=%s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["status"] != "approved" {
		t.Fatalf("status=%v, want approved", body["status"])
	}
}

func TestHandleReview_RejectsNonReviewerRole(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	runBody := `{"capability":"np_document_triage","run_id":"run-2","payload":{"filename":"a.txt","text":"a plain memo"},"actor":"system","role":"auto","auth_type":"api_key"}`
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(runBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /run status=%d", rec.Code)
	}

	reviewBody := `{"action":"approve","actor":"intern@example.com","role":"viewer","auth_type":"session"}`
	req = httptest.NewRequest(http.MethodPost, "/review/run-2", bytes.NewBufferString(reviewBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
}

func TestHandleAdminOverride_RequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	runBody := `{"capability":"np_document_triage","run_id":"run-3","payload":{"filename":"a.txt","text":"a plain memo"},"actor":"system","role":"auto","auth_type":"api_key"}`
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(runBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /run status=%d", rec.Code)
	}

	overrideBody := `{"target_status":"approved","actor":"rev@example.com","role":"reviewer","auth_type":"session"}`
	req = httptest.NewRequest(http.MethodPost, "/admin/override/run-3", bytes.NewBufferString(overrideBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403 for non-admin override", rec.Code)
	}

	overrideBody = `{"target_status":"approved","actor":"boss@example.com","role":"admin","auth_type":"session"}`
	req = httptest.NewRequest(http.MethodPost, "/admin/override/run-3", bytes.NewBufferString(overrideBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 for admin override, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleRun_BadCapabilityReturns400(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	runBody := `{"capability":"unknown","payload":{"filename":"a.txt","text":"a plain memo"},"actor":"system","role":"auto","auth_type":"api_key"}`
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(runBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestHandleDebugStatus_MissingRunReportsExistsFalse(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/status/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if exists, _ := body["exists"].(bool); exists {
		t.Fatalf("exists=%v, want false", body["exists"])
	}
}

func TestHandleDebugAudit_PopulatedAfterRun(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	runBody := `{"capability":"np_document_triage","run_id":"run-4","payload":{"filename":"a.txt","text":"a plain memo"},"actor":"system","role":"auto","auth_type":"api_key"}`
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(runBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /run status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/audit/run-4", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /debug/audit status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	count, _ := body["count"].(float64)
	if count < 1 {
		t.Fatalf("count=%v, want at least 1", body["count"])
	}
}

func TestHandleDebugAudit_NoTrailReturns404(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("status=%v, want ok", body["status"])
	}
}
