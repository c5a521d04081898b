// Package domain defines the core domain models for the gateway control plane.
package domain

// WorkflowIntent is a recognized leading command in a user message.
type WorkflowIntent string

const (
	IntentPlan   WorkflowIntent = "plan"
	IntentDebug  WorkflowIntent = "debug"
	IntentCreate WorkflowIntent = "create"
	IntentTest   WorkflowIntent = "test"
	IntentDeploy WorkflowIntent = "deploy"
)

// TaskStatus names a stage of the user message pipeline reported to the client.
type TaskStatus string

const (
	TaskStatusSelectingSkills TaskStatus = "selecting_skills"
	TaskStatusSecurityCheck   TaskStatus = "security_check"
	TaskStatusSkillsSelected  TaskStatus = "skills_selected"
	TaskStatusLoadingSkills   TaskStatus = "loading_skills"
	TaskStatusProcessing      TaskStatus = "processing"
)

// SessionStatus represents the lifecycle status of a persisted session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
