package security

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/policy"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return NewGate(NewRegistry(), engine)
}

func intentPtr(i domain.WorkflowIntent) *domain.WorkflowIntent { return &i }

func TestRegistryIdempotence(t *testing.T) {
	r := NewRegistry()
	r.Register("s1")
	r.Register("s1")
	assert.True(t, r.IsConstrained("s1"))
	assert.Equal(t, 1, r.Count())

	r.Unregister("s1")
	assert.False(t, r.IsConstrained("s1"))

	r.Unregister("s1")
	assert.False(t, r.IsConstrained("s1"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("s")
		}()
		go func() {
			defer wg.Done()
			_ = r.IsConstrained("s")
		}()
	}
	wg.Wait()
	assert.True(t, r.IsConstrained("s"))
}

func TestValidateWorkflow(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)
	gate.Registry().Register("widget")

	// Unconstrained sessions are unrestricted.
	for _, intent := range []domain.WorkflowIntent{domain.IntentPlan, domain.IntentDeploy, domain.IntentDebug} {
		assert.NoError(t, gate.ValidateWorkflow(ctx, "regular", intentPtr(intent)))
	}

	assert.NoError(t, gate.ValidateWorkflow(ctx, "widget", nil))
	assert.NoError(t, gate.ValidateWorkflow(ctx, "widget", intentPtr(domain.IntentDebug)))

	err := gate.ValidateWorkflow(ctx, "widget", intentPtr(domain.IntentPlan))
	require.Error(t, err)
	assert.True(t, domain.IsDenied(err))
	assert.Contains(t, err.Error(), `"plan" not permitted`)
	assert.Contains(t, err.Error(), "[debug]")
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(context.Context, policy.Input) (string, string, error) {
	return "", "", errors.New("boom")
}

func TestValidateWorkflowFailsClosed(t *testing.T) {
	gate := NewGate(NewRegistry(), failingEvaluator{})
	gate.Registry().Register("widget")

	err := gate.ValidateWorkflow(context.Background(), "widget", intentPtr(domain.IntentDebug))
	assert.True(t, domain.IsDenied(err))

	// Unconstrained sessions never reach the policy.
	assert.NoError(t, gate.ValidateWorkflow(context.Background(), "other", intentPtr(domain.IntentPlan)))
}

func TestValidateWorkflowWithoutPolicy(t *testing.T) {
	gate := NewGate(NewRegistry(), nil)
	gate.Registry().Register("widget")

	assert.NoError(t, gate.ValidateWorkflow(context.Background(), "widget", intentPtr(domain.IntentDebug)))
	assert.True(t, domain.IsDenied(gate.ValidateWorkflow(context.Background(), "widget", intentPtr(domain.IntentTest))))
}

func TestFilterSkills(t *testing.T) {
	gate := newTestGate(t)
	gate.Registry().Register("widget")

	candidates := []domain.SkillCandidate{
		{ID: "react-patterns"},
		{ID: "awesome-troubleshooting"},
		{ID: "awesome-error-analysis"},
		{ID: "kubernetes"},
		{ID: "awesome-debugging-mindset"},
		{ID: "awesome-root-cause-analysis"},
	}

	filtered := gate.FilterSkills("widget", candidates)
	require.Len(t, filtered, MaxWidgetSkills)
	assert.Equal(t, []string{"awesome-troubleshooting", "awesome-error-analysis", "awesome-debugging-mindset"},
		[]string{filtered[0].ID, filtered[1].ID, filtered[2].ID})
	for _, s := range filtered {
		assert.True(t, IsSkillAllowed(s.ID))
	}

	assert.Equal(t, candidates, gate.FilterSkills("regular", candidates))
	assert.Empty(t, gate.FilterSkills("widget", []domain.SkillCandidate{{ID: "react-patterns"}}))
}

func TestSelectionBudget(t *testing.T) {
	gate := newTestGate(t)
	gate.Registry().Register("widget")

	k, b := gate.SelectionBudget("regular", 8, 80000)
	assert.Equal(t, 8, k)
	assert.Equal(t, 80000, b)

	k, b = gate.SelectionBudget("widget", 8, 80000)
	assert.Equal(t, 8, k)
	assert.Equal(t, MaxWidgetBytes, b)
}
