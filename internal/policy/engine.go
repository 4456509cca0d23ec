// Package policy gates outbound requests with an OPA policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/livedoc/internal/protocol"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Engine is the OPA policy engine.
type Engine struct {
	query         rego.PreparedEvalQuery
	developerMode bool
}

// NewEngine creates a policy engine from policyContent. developerMode is
// passed to every evaluation.
func NewEngine(ctx context.Context, policyContent string, developerMode bool) (*Engine, error) {
	r := rego.New(
		rego.Query("data.outbound_policy.decision"),
		rego.Module("outbound_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query, developerMode: developerMode}, nil
}

// Evaluate runs the policy against input.
// Returns: decision (allow, deny), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input any) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The default policy always defines a decision; an undefined result
		// means a custom policy left this request out.
		return DecisionDeny, "undefined decision", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]any:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return DecisionDeny, "decision object without decision", nil
		}
		return decision, reason, nil
	default:
		return DecisionDeny, fmt.Sprintf("unexpected decision type %T", val), nil
	}
}

// Allow evaluates an outbound request.
func (e *Engine) Allow(ctx context.Context, req protocol.Request) (bool, string, error) {
	decision, reason, err := e.Evaluate(ctx, map[string]any{
		"type":           req.Type(),
		"debug":          req.Debug(),
		"developer_mode": e.developerMode,
	})
	if err != nil {
		return false, "", err
	}
	return decision == DecisionAllow, reason, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package outbound_policy

import rego.v1

default decision := {"decision": "allow"}

# Debug passthroughs only go out in developer mode.
decision := {"decision": "deny", "reason": "debug requests require developer mode"} if {
	input.debug
	not input.developer_mode
}
`
