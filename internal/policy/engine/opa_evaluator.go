package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const revokeQuery = "data.twofactor.session_revoke"

// Default Rego policy for session revocation. Ownership is enforced by the session store;
// this policy only decides whether the caller's current session may be revoked.
const defaultRevokePolicy = `package twofactor.session_revoke

default allow := false

default reason := ""

allow if not input.target.is_current

allow if {
	input.target.is_current
	input.settings.allow_self_revoke
}

reason := "current_session" if {
	input.target.is_current
	not input.settings.allow_self_revoke
}
`

// OPAEvaluator evaluates the revocation policy with an in-process OPA Rego engine.
type OPAEvaluator struct {
	query           rego.PreparedEvalQuery
	allowSelfRevoke bool
}

// NewOPAEvaluator compiles the revocation policy. allowSelfRevoke is exposed to the policy
// as input.settings.allow_self_revoke.
func NewOPAEvaluator(ctx context.Context, allowSelfRevoke bool) (*OPAEvaluator, error) {
	return newOPAEvaluator(ctx, defaultRevokePolicy, allowSelfRevoke)
}

func newOPAEvaluator(ctx context.Context, policy string, allowSelfRevoke bool) (*OPAEvaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"session_revoke.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile revoke policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(revokeQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare revoke policy: %w", err)
	}
	return &OPAEvaluator{query: q, allowSelfRevoke: allowSelfRevoke}, nil
}

// HealthCheck evaluates the policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateRevoke(ctx, RevokeInput{UserID: "health", TargetSessionID: "a", CurrentSessionID: "b"})
	return err
}

// EvaluateRevoke evaluates the revocation policy. Evaluation failures deny.
func (e *OPAEvaluator) EvaluateRevoke(ctx context.Context, in RevokeInput) (RevokeDecision, error) {
	input := map[string]interface{}{
		"user": map[string]interface{}{
			"id": in.UserID,
		},
		"target": map[string]interface{}{
			"id":         in.TargetSessionID,
			"is_current": in.TargetSessionID != "" && in.TargetSessionID == in.CurrentSessionID,
		},
		"settings": map[string]interface{}{
			"allow_self_revoke": e.allowSelfRevoke,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return RevokeDecision{}, fmt.Errorf("eval revoke policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return RevokeDecision{}, fmt.Errorf("revoke policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return RevokeDecision{}, fmt.Errorf("revoke policy returned %T", rs[0].Expressions[0].Value)
	}
	out := RevokeDecision{}
	if v, ok := doc["allow"].(bool); ok {
		out.Allowed = v
	}
	if v, ok := doc["reason"].(string); ok && !out.Allowed {
		out.Reason = v
	}
	return out, nil
}
