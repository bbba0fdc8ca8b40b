package engine

import "context"

// RevokeInput describes a session revocation request after ownership has been checked.
type RevokeInput struct {
	UserID           string
	TargetSessionID  string
	CurrentSessionID string
}

// RevokeDecision is the outcome of the revocation policy.
type RevokeDecision struct {
	Allowed bool
	// Reason is set when Allowed is false (e.g. "current_session").
	Reason string
}

// Evaluator evaluates session policies using OPA or other engines.
type Evaluator interface {
	// EvaluateRevoke decides whether the caller may revoke the target session.
	EvaluateRevoke(ctx context.Context, in RevokeInput) (RevokeDecision, error)
}

// ReasonCurrentSession is returned when the target is the caller's own current session
// and self-revocation is disabled.
const ReasonCurrentSession = "current_session"
