// Package protocol defines the WebSocket message protocol between clients and the gateway.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// Message types from client to gateway
const (
	TypeCreateSession = "create_session"
	TypeListSessions  = "list_sessions"
	TypeLoadSession   = "load_session"
	TypeUserMessage   = "user_message"
)

// Message types from gateway to client
const (
	TypeSessionList     = "session_list"
	TypeSessionLoaded   = "session_loaded"
	TypeMessageAppended = "message_appended"
	TypeSkillsSelected  = "skills_selected"
	TypeTaskStatus      = "task_status"
	TypeError           = "error"
)

// BaseMessage carries the discriminating type tag shared by every message.
type BaseMessage struct {
	Type string `json:"type"`
}

// CreateSessionMessage asks the gateway to persist a new session.
type CreateSessionMessage struct {
	BaseMessage
	Title  string  `json:"title"`
	Repo   string  `json:"repo"`
	Branch *string `json:"branch,omitempty"`
}

// ListSessionsMessage asks for every persisted session.
type ListSessionsMessage struct {
	BaseMessage
}

// LoadSessionMessage asks for one session and its messages.
type LoadSessionMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// UserMessage is free text entered by the user.
type UserMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// SessionView is the wire form of a persisted session.
type SessionView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	RepoName   string  `json:"repo_name"`
	BranchName *string `json:"branch_name"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"created_at"`
}

// MessageView is the wire form of a persisted message.
type MessageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// SkillSummary is the client-facing digest of a selected skill.
type SkillSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	SizeBytes int     `json:"size_bytes"`
}

// SessionListMessage answers create_session and list_sessions.
type SessionListMessage struct {
	BaseMessage
	Sessions []SessionView `json:"sessions"`
}

// SessionLoadedMessage answers load_session.
type SessionLoadedMessage struct {
	BaseMessage
	Session  SessionView   `json:"session"`
	Messages []MessageView `json:"messages"`
}

// MessageAppendedMessage delivers a new message for a session.
type MessageAppendedMessage struct {
	BaseMessage
	SessionID string      `json:"session_id"`
	Message   MessageView `json:"message"`
}

// SkillsSelectedMessage reports the outcome of skill selection.
type SkillsSelectedMessage struct {
	BaseMessage
	SessionID  string         `json:"session_id"`
	Persona    string         `json:"persona"`
	Category   string         `json:"category"`
	Skills     []SkillSummary `json:"skills"`
	TotalBytes int            `json:"total_bytes"`
}

// TaskStatusMessage reports pipeline progress.
type TaskStatusMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Details   string `json:"details"`
}

// ErrorMessage is sent by the gateway when handling a message fails.
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// DecodeClient parses a raw client frame into one of the client message types.
// Failures wrap domain.ErrValidation.
func DecodeClient(data []byte) (any, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var msg any
	switch base.Type {
	case TypeCreateSession:
		msg = &CreateSessionMessage{}
	case TypeListSessions:
		msg = &ListSessionsMessage{}
	case TypeLoadSession:
		msg = &LoadSessionMessage{}
	case TypeUserMessage:
		msg = &UserMessage{}
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", domain.ErrValidation, base.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func validate(msg any) error {
	switch m := msg.(type) {
	case *CreateSessionMessage:
		if m.Title == "" || m.Repo == "" {
			return fmt.Errorf("%w: title and repo are required", domain.ErrValidation)
		}
	case *LoadSessionMessage:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
		}
	case *UserMessage:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
		}
	}
	return nil
}

// NewSessionView converts a domain session to its wire form.
func NewSessionView(s *domain.Session) SessionView {
	return SessionView{
		ID:         s.ID,
		Title:      s.Title,
		RepoName:   s.RepoName,
		BranchName: s.BranchName,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.Unix(),
	}
}

// NewMessageView converts a domain message to its wire form.
func NewMessageView(m *domain.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Unix(),
	}
}

// NewSkillSummaries digests ranked candidates for the client.
func NewSkillSummaries(skills []domain.SkillCandidate) []SkillSummary {
	out := make([]SkillSummary, 0, len(skills))
	for _, s := range skills {
		out = append(out, SkillSummary{ID: s.ID, Name: s.Name, Score: s.Score, SizeBytes: s.SizeBytes})
	}
	return out
}

// NewError builds an error message.
func NewError(message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: BaseMessage{Type: TypeError}, Message: message}
}

// NewTaskStatus builds a task_status message.
func NewTaskStatus(sessionID string, status domain.TaskStatus, details string) *TaskStatusMessage {
	return &TaskStatusMessage{
		BaseMessage: BaseMessage{Type: TypeTaskStatus},
		SessionID:   sessionID,
		Status:      string(status),
		Details:     details,
	}
}
