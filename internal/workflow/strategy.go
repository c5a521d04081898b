package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// Task is the input handed to a workflow strategy.
type Task struct {
	SessionID string
	Request   string
	Selection *domain.SkillSelectionResult
	Content   map[string]string
}

// Strategy executes one workflow.
type Strategy interface {
	Execute(ctx context.Context, task Task) (domain.TaskOutcome, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, task Task) (domain.TaskOutcome, error)

func (f StrategyFunc) Execute(ctx context.Context, task Task) (domain.TaskOutcome, error) {
	return f(ctx, task)
}

// Executor maps intents to strategies and runs the default strategy otherwise.
type Executor struct {
	strategies map[domain.WorkflowIntent]Strategy
	fallback   Strategy
}

// NewExecutor creates an executor with the plan and debug strategies registered.
// artifactDir may be empty, in which case plans are not written to disk.
func NewExecutor(artifactDir string) *Executor {
	e := &Executor{
		strategies: make(map[domain.WorkflowIntent]Strategy),
		fallback:   StrategyFunc(executeDefault),
	}
	e.Register(domain.IntentPlan, &PlanStrategy{ArtifactDir: artifactDir})
	e.Register(domain.IntentDebug, StrategyFunc(executeDebug))
	return e
}

// Register installs or replaces the strategy for an intent.
func (e *Executor) Register(intent domain.WorkflowIntent, s Strategy) {
	e.strategies[intent] = s
}

// Execute runs the strategy for intent, or the default strategy when intent is nil
// or has no registered strategy.
func (e *Executor) Execute(ctx context.Context, intent *domain.WorkflowIntent, task Task) (domain.TaskOutcome, error) {
	strategy := e.fallback
	if intent != nil {
		if s, ok := e.strategies[*intent]; ok {
			strategy = s
		}
	}
	return strategy.Execute(ctx, task)
}

// Plan outcome constants.
const (
	PlanArtifact = "implementation_plan.md"
	PlanNextStep = "Review and approve the plan to proceed"
)

// PlanStrategy drafts an implementation plan and asks for review.
type PlanStrategy struct {
	ArtifactDir string
}

func (p *PlanStrategy) Execute(ctx context.Context, task Task) (domain.TaskOutcome, error) {
	skillCount := 0
	if task.Selection != nil {
		skillCount = len(task.Selection.Skills)
	}
	log.Info().Str("session_id", task.SessionID).Int("skills", skillCount).Msg("executing plan workflow")

	if p.ArtifactDir != "" {
		dir := filepath.Join(p.ArtifactDir, filepath.Base(task.SessionID))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
		path := filepath.Join(dir, PlanArtifact)
		if err := os.WriteFile(path, []byte(PlanMarkdown(task)), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write plan artifact: %w", err)
		}
	}

	return domain.RequiresReview{Artifact: PlanArtifact, NextStep: PlanNextStep}, nil
}

// PlanMarkdown renders the plan document for a task.
func PlanMarkdown(task Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Implementation Plan: %s\n\n", task.Request)
	fmt.Fprintf(&b, "## Goal\n%s\n\n", task.Request)
	b.WriteString("## Proposed Changes\n- [ ] TBD based on analysis\n\n")
	b.WriteString("## Skills Used\n")
	if task.Selection != nil {
		for _, s := range task.Selection.Skills {
			fmt.Fprintf(&b, "- %s\n", s.Name)
		}
	}
	return b.String()
}

// Debug outcome constants.
const (
	DebugRootCause  = "Hypothetical Root Cause: Configuration mismatch"
	DebugFix        = "Update config.toml with correct port"
	DebugConfidence = 0.85
)

func executeDebug(ctx context.Context, task Task) (domain.TaskOutcome, error) {
	log.Info().Str("session_id", task.SessionID).Msg("executing debug workflow")
	return domain.DebugDiagnosis{
		RootCause:   DebugRootCause,
		ProposedFix: DebugFix,
		Confidence:  DebugConfidence,
	}, nil
}

func executeDefault(ctx context.Context, task Task) (domain.TaskOutcome, error) {
	persona := ""
	skills := 0
	if task.Selection != nil {
		persona = task.Selection.Persona
		skills = len(task.Selection.Skills)
	}
	return domain.Completed{
		Summary: fmt.Sprintf("Processed request with persona %q using %d skills", persona, skills),
	}, nil
}
