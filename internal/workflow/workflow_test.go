package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input  string
		want   domain.WorkflowIntent
		wantOK bool
	}{
		{"/plan", domain.IntentPlan, true},
		{"/debug issue", domain.IntentDebug, true},
		{"  /PLAN  ", domain.IntentPlan, true},
		{"\n\t/Deploy to prod", domain.IntentDeploy, true},
		{"\f/debug x", domain.IntentDebug, true},
		{"\v/debug x", domain.IntentDebug, true},
		{"\u00a0/debug x", domain.IntentDebug, true},
		{"\u3000/plan x", domain.IntentPlan, true},
		{"/create a widget", domain.IntentCreate, true},
		{"/testing things", domain.IntentTest, true},
		{"regular message", "", false},
		{"please /plan this", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupsAreTotal(t *testing.T) {
	for _, intent := range Intents() {
		assert.NotEmpty(t, PersonaFor(intent), intent)
		assert.NotEmpty(t, DescriptionFor(intent), intent)
	}
	assert.Equal(t, "architect", PersonaFor(domain.IntentPlan))
	assert.Equal(t, "troubleshooter", PersonaFor(domain.IntentDebug))
	assert.Equal(t, "Performing systematic troubleshooting", DescriptionFor(domain.IntentDebug))
}

func TestExecutorPlanWritesArtifact(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecutor(dir)
	intent := domain.IntentPlan

	outcome, err := exec.Execute(context.Background(), &intent, Task{
		SessionID: "s1",
		Request:   "/plan Add OAuth login",
		Selection: &domain.SkillSelectionResult{Skills: []domain.SkillCandidate{{ID: "oauth", Name: "OAuth Patterns"}}},
	})
	require.NoError(t, err)

	review, ok := outcome.(domain.RequiresReview)
	require.True(t, ok)
	assert.Equal(t, PlanArtifact, review.Artifact)
	assert.Equal(t, PlanNextStep, review.NextStep)

	data, err := os.ReadFile(filepath.Join(dir, "s1", PlanArtifact))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Implementation Plan: /plan Add OAuth login")
	assert.Contains(t, string(data), "- OAuth Patterns")
}

func TestExecutorDebugAndDefault(t *testing.T) {
	exec := NewExecutor("")
	ctx := context.Background()

	debug := domain.IntentDebug
	outcome, err := exec.Execute(ctx, &debug, Task{SessionID: "s1"})
	require.NoError(t, err)
	diag, ok := outcome.(domain.DebugDiagnosis)
	require.True(t, ok)
	assert.InDelta(t, 0.85, diag.Confidence, 1e-9)

	deploy := domain.IntentDeploy
	outcome, err = exec.Execute(ctx, &deploy, Task{Selection: &domain.SkillSelectionResult{Persona: "devops-engineer"}})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, outcome.OutcomeType())

	outcome, err = exec.Execute(ctx, nil, Task{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, outcome.OutcomeType())
}

func TestExecutorRegisterOverrides(t *testing.T) {
	exec := NewExecutor("")
	test := domain.IntentTest
	exec.Register(test, StrategyFunc(func(ctx context.Context, task Task) (domain.TaskOutcome, error) {
		return domain.Completed{Summary: "ran tests"}, nil
	}))

	outcome, err := exec.Execute(context.Background(), &test, Task{})
	require.NoError(t, err)
	assert.Equal(t, "ran tests", Render(outcome))
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Plan drafted: implementation_plan.md\n\nNext step: Review and approve the plan to proceed",
		Render(domain.RequiresReview{Artifact: PlanArtifact, NextStep: PlanNextStep}))
	assert.Contains(t, Render(domain.DebugDiagnosis{RootCause: "x", ProposedFix: "y", Confidence: 0.85}), "Confidence: 85%")
	assert.Equal(t, "done", Render(domain.Completed{Summary: "done"}))
}
