package security

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/policy"
)

// Widget session limits.
const (
	MaxWidgetSkills = 3
	MaxWidgetBytes  = 30000
)

// AllowedWorkflows is the only intent set a constrained session may run.
var AllowedWorkflows = []domain.WorkflowIntent{domain.IntentDebug}

var allowedSkills = map[string]struct{}{
	"awesome-troubleshooting":     {},
	"awesome-error-analysis":      {},
	"awesome-debugging-mindset":   {},
	"awesome-root-cause-analysis": {},
}

// IsSkillAllowed reports whether a skill id is on the widget allowlist.
func IsSkillAllowed(id string) bool {
	_, ok := allowedSkills[id]
	return ok
}

// Evaluator decides whether a workflow may run.
type Evaluator interface {
	Evaluate(ctx context.Context, input policy.Input) (string, string, error)
}

// Gate applies widget restrictions using the registry and a workflow policy.
type Gate struct {
	registry *Registry
	policy   Evaluator
}

// NewGate creates a gate. A nil evaluator falls back to the allowlist check alone.
func NewGate(registry *Registry, evaluator Evaluator) *Gate {
	return &Gate{registry: registry, policy: evaluator}
}

// Registry returns the underlying session registry.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// IsConstrained reports whether the session is a widget session.
func (g *Gate) IsConstrained(sessionID string) bool {
	return g.registry.IsConstrained(sessionID)
}

// ValidateWorkflow returns a *domain.DeniedError when the session may not run intent.
// A nil intent (plain message) is always permitted.
func (g *Gate) ValidateWorkflow(ctx context.Context, sessionID string, intent *domain.WorkflowIntent) error {
	constrained := g.registry.IsConstrained(sessionID)
	if !constrained || intent == nil {
		return nil
	}

	if g.policy == nil {
		if intentAllowed(*intent) {
			return nil
		}
		return &domain.DeniedError{Intent: *intent, Allowed: AllowedWorkflows}
	}

	allowed := make([]string, 0, len(AllowedWorkflows))
	for _, a := range AllowedWorkflows {
		allowed = append(allowed, string(a))
	}

	decision, reason, err := g.policy.Evaluate(ctx, policy.Input{
		SessionID:   sessionID,
		Constrained: constrained,
		Intent:      string(*intent),
		Allowed:     allowed,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("workflow policy evaluation failed, denying")
		return &domain.DeniedError{Intent: *intent, Allowed: AllowedWorkflows, Reason: "policy evaluation failed"}
	}
	if decision != policy.DecisionAllow {
		return &domain.DeniedError{Intent: *intent, Allowed: AllowedWorkflows, Reason: reason}
	}
	return nil
}

// FilterSkills keeps only allowlisted candidates for constrained sessions,
// truncated to MaxWidgetSkills. Ranking order is preserved.
func (g *Gate) FilterSkills(sessionID string, skills []domain.SkillCandidate) []domain.SkillCandidate {
	if !g.registry.IsConstrained(sessionID) {
		return skills
	}

	filtered := make([]domain.SkillCandidate, 0, MaxWidgetSkills)
	for _, s := range skills {
		if len(filtered) == MaxWidgetSkills {
			break
		}
		if IsSkillAllowed(s.ID) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// SelectionBudget narrows the byte budget of the ranking request for constrained
// sessions. The count is left alone so filtering has candidates to choose from.
func (g *Gate) SelectionBudget(sessionID string, maxCount, maxBytes int) (int, int) {
	if !g.registry.IsConstrained(sessionID) {
		return maxCount, maxBytes
	}
	return maxCount, min(maxBytes, MaxWidgetBytes)
}

func intentAllowed(intent domain.WorkflowIntent) bool {
	for _, a := range AllowedWorkflows {
		if a == intent {
			return true
		}
	}
	return false
}
