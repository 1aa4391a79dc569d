package domain

import "errors"

// Sentinel errors for the governance core, checked with errors.Is at
// transport boundaries and mapped to status codes there, not here.
var (
	ErrIllegalTransition     = errors.New("illegal transition")
	ErrAdminRoleRequired     = errors.New("admin role required")
	ErrAdminOverrideRejected = errors.New("admin override rejected")
	ErrRunNotFound           = errors.New("run not found")
	ErrInvalidAction         = errors.New("invalid action")
	ErrCorruptedState        = errors.New("corrupted state")
	ErrClassifierFailure     = errors.New("classifier failure")
	ErrManifestMissing       = errors.New("manifest missing")
	ErrBadCapability         = errors.New("bad capability")
	ErrPolicyDenied          = errors.New("policy denied")
)
