// Package manifest implements the Manifest & Capability Policy Loader
// (C9): resolving a capability to its on-disk manifest, policy, and
// keyword artifacts.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/novapact/gcu-go/internal/domain"
	"github.com/novapact/gcu-go/internal/platform/policy"
)

const (
	manifestFile = "manifest.json"
	policyFile   = "policy.yaml"
	keywordsFile = "keywords.json"
)

type keywordsDoc struct {
	HighRiskSignals      []signalDoc `json:"high_risk_signals"`
	PotentialRiskSignals []signalDoc `json:"potential_risk_signals"`
	SafeSignals          []signalDoc `json:"safe_signals"`
}

type signalDoc struct {
	Signal string  `json:"signal"`
	Weight float64 `json:"weight"`
}

// Loader resolves a single capability's manifest bundle from a
// directory on disk, per spec §4.9. A deployment is configured with
// exactly one capability (CAPABILITY_NAME) and exactly one manifest_path.
type Loader struct {
	manifestPath string
	capability   string
}

func NewLoader(manifestPath, capability string) *Loader {
	return &Loader{manifestPath: manifestPath, capability: capability}
}

// Load reads manifest.json, policy.yaml, and keywords.json from the
// configured manifest_path. Any missing or unreadable artifact is
// surfaced as ErrManifestMissing; the capability match itself is
// checked earlier by the Governance Gate (BadCapability), not here.
func (l *Loader) Load() (domain.ManifestBundle, error) {
	if _, err := os.Stat(l.manifestPath); err != nil {
		return domain.ManifestBundle{}, fmt.Errorf("%w: %v", domain.ErrManifestMissing, err)
	}

	if _, err := readJSON(filepath.Join(l.manifestPath, manifestFile)); err != nil {
		return domain.ManifestBundle{}, fmt.Errorf("%w: manifest.json: %v", domain.ErrManifestMissing, err)
	}

	policyBytes, err := os.ReadFile(filepath.Join(l.manifestPath, policyFile))
	if err != nil {
		return domain.ManifestBundle{}, fmt.Errorf("%w: policy.yaml: %v", domain.ErrManifestMissing, err)
	}
	spec, err := policy.ParseSpec(policyBytes)
	if err != nil {
		return domain.ManifestBundle{}, fmt.Errorf("%w: policy.yaml: %v", domain.ErrManifestMissing, err)
	}

	var kwDoc keywordsDoc
	if err := readJSONInto(filepath.Join(l.manifestPath, keywordsFile), &kwDoc); err != nil {
		return domain.ManifestBundle{}, fmt.Errorf("%w: keywords.json: %v", domain.ErrManifestMissing, err)
	}

	return domain.ManifestBundle{
		Capability:   l.capability,
		ManifestPath: l.manifestPath,
		PolicySpec:   spec,
		Keywords:     toKeywordSet(kwDoc),
	}, nil
}

func toKeywordSet(doc keywordsDoc) domain.KeywordSet {
	return domain.KeywordSet{
		HighRisk:      toSignals(doc.HighRiskSignals),
		PotentialRisk: toSignals(doc.PotentialRiskSignals),
		Safe:          toSignals(doc.SafeSignals),
	}
}

func toSignals(docs []signalDoc) []domain.KeywordSignal {
	out := make([]domain.KeywordSignal, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.KeywordSignal{Signal: d.Signal, Weight: d.Weight})
	}
	return out
}

func readJSON(path string) (map[string]any, error) {
	var out map[string]any
	err := readJSONInto(path, &out)
	return out, err
}

func readJSONInto(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
