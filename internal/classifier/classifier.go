// Package classifier implements the Default Classifier (C8): a
// keyword-weighted document scorer that stands in for the "external
// collaborator" the governance core is decoupled from.
package classifier

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/novapact/gcu-go/internal/domain"
)

const (
	baseScore          = 0.50
	highRiskThreshold  = 0.75
	potentialThreshold = 0.45
)

// Classifier is the interface the Governance Gate invokes; the default
// implementation below satisfies it, but any external collaborator
// returning the same shape may be substituted.
type Classifier interface {
	Classify(text string, keywords domain.KeywordSet, runID string) (domain.ClassifierOutput, error)
}

// Default is the keyword-weighted scorer described in spec §4.8.
type Default struct{}

func NewDefault() Default {
	return Default{}
}

// Classify scores text against keywords, starting from a 0.50 base and
// summing matched signal weights, clamped to [0,1]. It returns "error"
// only when it cannot process the input at all; it never itself
// returns "needs_review" — that determination belongs to the
// Governance Gate's threshold comparison and policy evaluation.
func (Default) Classify(text string, keywords domain.KeywordSet, runID string) (domain.ClassifierOutput, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if strings.TrimSpace(text) == "" {
		return domain.ClassifierOutput{
			Status: domain.StatusError,
			RunID:  runID,
		}, fmt.Errorf("%w: empty document text", domain.ErrClassifierFailure)
	}
	if len(keywords.HighRisk) == 0 && len(keywords.PotentialRisk) == 0 && len(keywords.Safe) == 0 {
		return domain.ClassifierOutput{
			Status: domain.StatusError,
			RunID:  runID,
		}, fmt.Errorf("%w: empty keyword set", domain.ErrClassifierFailure)
	}

	lower := strings.ToLower(text)
	score := baseScore
	var signals []domain.ExplainabilitySignal

	for _, group := range [][]domain.KeywordSignal{keywords.HighRisk, keywords.PotentialRisk, keywords.Safe} {
		for _, kw := range group {
			sig := strings.ToLower(strings.TrimSpace(kw.Signal))
			if sig == "" || !strings.Contains(lower, sig) {
				continue
			}
			score += kw.Weight
			signals = append(signals, domain.ExplainabilitySignal{Signal: sig, Weight: kw.Weight})
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	classification := "non-risk"
	switch {
	case score >= highRiskThreshold:
		classification = "high-risk"
	case score >= potentialThreshold:
		classification = "potential-risk"
	}

	return domain.ClassifierOutput{
		Status:         domain.StatusOK,
		RunID:          runID,
		Confidence:     score,
		Classification: classification,
		Explainability: signals,
	}, nil
}
