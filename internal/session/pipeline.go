package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/protocol"
	"github.com/xiaot623/gogo/gateway/internal/telemetry"
	"github.com/xiaot623/gogo/gateway/internal/worker"
	"github.com/xiaot623/gogo/gateway/internal/workflow"
)

// processUserMessage runs the staged pipeline for one user message. Status
// notifications are sent as each stage begins; the returned message is the
// terminal message_appended.
func (s *Service) processUserMessage(ctx context.Context, out Sender, m *protocol.UserMessage) (reply any, err error) {
	sessionID := m.SessionID
	ctx, span := telemetry.Tracer().Start(ctx, "session.user_message",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := log.With().Str("session_id", sessionID).Logger()
	s.persistMessage(ctx, sessionID, domain.RoleUser, m.Content)

	var intent *domain.WorkflowIntent
	if parsed, ok := workflow.Parse(m.Content); ok {
		intent = &parsed
		span.SetAttributes(attribute.String("intent", string(parsed)))
	}

	start := time.Now()
	if err := s.gate.ValidateWorkflow(ctx, sessionID, intent); err != nil {
		s.metrics.ObserveStage(string(domain.TaskStatusSecurityCheck), "denied", time.Since(start))
		logger.Warn().Err(err).Msg("workflow rejected by security gate")
		return nil, err
	}

	// selecting_skills
	if err := s.notify(ctx, out, sessionID, domain.TaskStatusSelectingSkills, "Selecting relevant skills"); err != nil {
		return nil, err
	}
	start = time.Now()
	maxCount, maxBytes := s.gate.SelectionBudget(sessionID, s.cfg.MaxSkills, s.cfg.MaxBytes)
	selection, err := worker.Do(ctx, s.pool, func(ctx context.Context) (*domain.SkillSelectionResult, error) {
		return s.selector.Select(ctx, m.Content, maxCount, maxBytes)
	})
	s.observe(domain.TaskStatusSelectingSkills, start, err)
	if err != nil {
		return nil, fmt.Errorf("skill selection failed: %w", err)
	}
	if intent != nil {
		selection.Persona = workflow.PersonaFor(*intent)
	}

	// security_check
	if s.gate.IsConstrained(sessionID) {
		if err := s.notify(ctx, out, sessionID, domain.TaskStatusSecurityCheck, "Restricting skills for widget session"); err != nil {
			return nil, err
		}
		start = time.Now()
		before := len(selection.Skills)
		selection.Skills = s.gate.FilterSkills(sessionID, selection.Skills)
		recomputeTotals(selection)
		s.observe(domain.TaskStatusSecurityCheck, start, nil)
		logger.Debug().Int("before", before).Int("after", len(selection.Skills)).Msg("skills filtered")
	}

	// skills_selected
	if err := s.send(ctx, out, &protocol.SkillsSelectedMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSkillsSelected},
		SessionID:   sessionID,
		Persona:     selection.Persona,
		Category:    selection.Category,
		Skills:      protocol.NewSkillSummaries(selection.Skills),
		TotalBytes:  selection.TotalBytes,
	}); err != nil {
		return nil, err
	}

	// loading_skills
	ids := selection.SkillIDs()
	if err := s.notify(ctx, out, sessionID, domain.TaskStatusLoadingSkills, fmt.Sprintf("Loading %d skills", len(ids))); err != nil {
		return nil, err
	}
	start = time.Now()
	content, err := worker.Do(ctx, s.pool, func(ctx context.Context) (map[string]string, error) {
		return s.loader.LoadContent(ctx, ids)
	})
	s.observe(domain.TaskStatusLoadingSkills, start, err)
	if err != nil {
		logger.Warn().Err(err).Strs("skills", ids).Msg("failed to load skill content, continuing without it")
		content = map[string]string{}
	}

	// processing
	details := "Processing request"
	if intent != nil {
		details = workflow.DescriptionFor(*intent)
	}
	if err := s.notify(ctx, out, sessionID, domain.TaskStatusProcessing, details); err != nil {
		return nil, err
	}
	start = time.Now()
	task := workflow.Task{SessionID: sessionID, Request: m.Content, Selection: selection, Content: content}
	outcome, err := worker.Do(ctx, s.pool, func(ctx context.Context) (domain.TaskOutcome, error) {
		return s.executor.Execute(ctx, intent, task)
	})
	s.observe(domain.TaskStatusProcessing, start, err)
	if err != nil {
		return nil, fmt.Errorf("workflow execution failed: %w", err)
	}

	assistant := s.persistMessage(ctx, sessionID, domain.RoleAssistant, workflow.Render(outcome))
	logger.Info().
		Str("persona", selection.Persona).
		Int("skills", len(selection.Skills)).
		Str("outcome", string(outcome.OutcomeType())).
		Msg("user message processed")

	return &protocol.MessageAppendedMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeMessageAppended},
		SessionID:   sessionID,
		Message:     protocol.NewMessageView(assistant),
	}, nil
}

func (s *Service) notify(ctx context.Context, out Sender, sessionID string, status domain.TaskStatus, details string) error {
	return s.send(ctx, out, protocol.NewTaskStatus(sessionID, status, details))
}

func (s *Service) observe(stage domain.TaskStatus, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveStage(string(stage), status, time.Since(start))
}

// persistMessage records a message when its session exists in the store.
// The returned message is usable even when nothing was stored.
func (s *Service) persistMessage(ctx context.Context, sessionID, role, content string) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	_, err := worker.Do(ctx, s.pool, func(ctx context.Context) (struct{}, error) {
		if _, err := s.store.GetSession(ctx, sessionID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.store.CreateMessage(ctx, msg)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		log.Debug().Str("session_id", sessionID).Msg("session not persisted, skipping message history")
	default:
		log.Warn().Err(err).Str("session_id", sessionID).Str("role", role).Msg("failed to persist message")
	}
	return msg
}

func recomputeTotals(sel *domain.SkillSelectionResult) {
	total := 0
	for _, sk := range sel.Skills {
		total += sk.SizeBytes
	}
	sel.TotalBytes = total
	sel.Limits.ActualSkills = len(sel.Skills)
	sel.Limits.ActualBytes = total
}
