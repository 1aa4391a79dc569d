// Package resolver implements the Status Resolver (C1): a pure,
// deterministic mapping from a classification result to the status a
// freshly created run starts in.
package resolver

import "github.com/novapact/gcu-go/internal/domain"

// Resolve derives the initial status for a ClassificationResult.
// Referentially transparent: same input always yields the same output,
// no clocks, no randomness, no I/O.
func Resolve(result domain.ClassificationResult) domain.Status {
	switch {
	case result.ErrorOccurred:
		return domain.StatusError
	case result.AdminOverride && result.Approval:
		return domain.StatusApproved
	case result.HITLRequired && !result.Approval:
		return domain.StatusNeedsReview
	default:
		return domain.StatusOK
	}
}
