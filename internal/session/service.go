// Package session runs the per-connection message protocol: session CRUD
// pass-through and the staged user message pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/protocol"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/internal/security"
	"github.com/xiaot623/gogo/gateway/internal/skills"
	"github.com/xiaot623/gogo/gateway/internal/telemetry"
	"github.com/xiaot623/gogo/gateway/internal/worker"
	"github.com/xiaot623/gogo/gateway/internal/workflow"
)

// Sender delivers one server message to the client. Send must not return
// before the frame is written.
type Sender interface {
	Send(ctx context.Context, msg any) error
}

// SkillSelector ranks skills for a query.
type SkillSelector interface {
	Select(ctx context.Context, query string, maxCount, maxBytes int) (*domain.SkillSelectionResult, error)
}

// ContentLoader reads skill content by id.
type ContentLoader interface {
	LoadContent(ctx context.Context, ids []string) (map[string]string, error)
}

// Config holds the selection defaults used for every user message.
type Config struct {
	MaxSkills int
	MaxBytes  int
}

// DefaultConfig returns the standard selection budget.
func DefaultConfig() Config {
	return Config{MaxSkills: skills.DefaultMaxSkills, MaxBytes: skills.DefaultMaxBytes}
}

type Service struct {
	cfg      Config
	store    repository.Store
	gate     *security.Gate
	selector SkillSelector
	loader   ContentLoader
	executor *workflow.Executor
	pool     *worker.Pool
	metrics  *telemetry.Metrics
}

func New(cfg Config, store repository.Store, gate *security.Gate, selector SkillSelector, loader ContentLoader, executor *workflow.Executor, pool *worker.Pool, metrics *telemetry.Metrics) *Service {
	if cfg.MaxSkills <= 0 {
		cfg.MaxSkills = skills.DefaultMaxSkills
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = skills.DefaultMaxBytes
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		gate:     gate,
		selector: selector,
		loader:   loader,
		executor: executor,
		pool:     pool,
		metrics:  metrics,
	}
}

// HandleMessage decodes one raw client frame and handles it. Every failure is
// reported to the client as an error message; only a domain.ErrTransport
// error is returned, and it means the connection must be closed.
func (s *Service) HandleMessage(ctx context.Context, out Sender, data []byte) error {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		s.metrics.IncMessage("invalid", "error")
		log.Debug().Err(err).Msg("rejected client message")
		return s.sendError(ctx, out, err)
	}
	return s.Handle(ctx, out, msg)
}

// Handle dispatches a decoded client message.
func (s *Service) Handle(ctx context.Context, out Sender, msg any) error {
	var (
		reply any
		err   error
		kind  string
	)

	switch m := msg.(type) {
	case *protocol.CreateSessionMessage:
		kind = protocol.TypeCreateSession
		reply, err = s.createSession(ctx, m)
	case *protocol.ListSessionsMessage:
		kind = protocol.TypeListSessions
		reply, err = s.listSessions(ctx)
	case *protocol.LoadSessionMessage:
		kind = protocol.TypeLoadSession
		reply, err = s.loadSession(ctx, m.SessionID)
	case *protocol.UserMessage:
		kind = protocol.TypeUserMessage
		reply, err = s.processUserMessage(ctx, out, m)
	default:
		kind = "unknown"
		err = fmt.Errorf("%w: unsupported message %T", domain.ErrValidation, msg)
	}

	if err != nil {
		if errors.Is(err, domain.ErrTransport) {
			s.metrics.IncMessage(kind, "transport_error")
			return err
		}
		s.metrics.IncMessage(kind, "error")
		log.Warn().Err(err).Str("type", kind).Msg("message handling failed")
		return s.sendError(ctx, out, err)
	}

	s.metrics.IncMessage(kind, "ok")
	return s.send(ctx, out, reply)
}

func (s *Service) createSession(ctx context.Context, m *protocol.CreateSessionMessage) (any, error) {
	sess := &domain.Session{
		ID:         uuid.New().String(),
		Title:      m.Title,
		RepoName:   m.Repo,
		BranchName: m.Branch,
		Status:     domain.SessionStatusPending,
		CreatedAt:  time.Now(),
	}
	_, err := worker.Do(ctx, s.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.CreateSession(ctx, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().Str("session_id", sess.ID).Str("repo", sess.RepoName).Msg("session created")
	return &protocol.SessionListMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSessionList},
		Sessions:    []protocol.SessionView{protocol.NewSessionView(sess)},
	}, nil
}

func (s *Service) listSessions(ctx context.Context) (any, error) {
	sessions, err := worker.Do(ctx, s.pool, s.store.ListSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]protocol.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, protocol.NewSessionView(&sessions[i]))
	}
	return &protocol.SessionListMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSessionList},
		Sessions:    views,
	}, nil
}

type loaded struct {
	session  *domain.Session
	messages []domain.Message
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (any, error) {
	res, err := worker.Do(ctx, s.pool, func(ctx context.Context) (loaded, error) {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return loaded{}, err
		}
		msgs, err := s.store.GetMessages(ctx, sessionID)
		if err != nil {
			return loaded{}, err
		}
		return loaded{session: sess, messages: msgs}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	views := make([]protocol.MessageView, 0, len(res.messages))
	for i := range res.messages {
		views = append(views, protocol.NewMessageView(&res.messages[i]))
	}
	return &protocol.SessionLoadedMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeSessionLoaded},
		Session:     protocol.NewSessionView(res.session),
		Messages:    views,
	}, nil
}

func (s *Service) send(ctx context.Context, out Sender, msg any) error {
	if err := out.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

func (s *Service) sendError(ctx context.Context, out Sender, err error) error {
	return s.send(ctx, out, protocol.NewError(err.Error()))
}
