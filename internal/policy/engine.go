// Package policy evaluates workflow access rules with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the workflow policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is the document the workflow policy is evaluated against.
type Input struct {
	SessionID   string   `json:"session_id"`
	Constrained bool     `json:"constrained"`
	Intent      string   `json:"intent"`
	Allowed     []string `json:"allowed"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.workflow_policy.decision"),
		rego.Module("workflow_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the workflow policy.
// Returns: decision (allow, deny), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	if input.Allowed == nil {
		input.Allowed = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Undefined decision: the policy is expected to set a default, so treat
		// a missing one as a broken policy.
		return DecisionDeny, "policy produced no decision", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return DecisionDeny, "policy returned object without decision", nil
		}
		return decision, reason, nil
	default:
		return DecisionDeny, "unexpected return type", nil
	}
}

// DefaultPolicy restricts constrained (widget) sessions to their allowed workflows.
// Plain messages without a workflow command are always permitted.
const DefaultPolicy = `
package workflow_policy

default decision = "allow"

decision = "deny" {
	input.constrained
	input.intent != ""
	not intent_allowed
}

intent_allowed {
	input.allowed[_] == input.intent
}
`
