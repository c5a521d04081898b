package domain

import "encoding/json"

// OutcomeType discriminates TaskOutcome variants on the wire.
type OutcomeType string

const (
	OutcomeRequiresReview OutcomeType = "requires_review"
	OutcomeDebugDiagnosis OutcomeType = "debug_diagnosis"
	OutcomeCompleted      OutcomeType = "completed"
)

// TaskOutcome is the result of executing a workflow for one user message.
// Implementations are RequiresReview, DebugDiagnosis and Completed.
type TaskOutcome interface {
	OutcomeType() OutcomeType
}

// RequiresReview means an artifact was drafted and needs user review.
type RequiresReview struct {
	Artifact string `json:"artifact"`
	NextStep string `json:"next_step"`
}

// DebugDiagnosis is the result of a troubleshooting workflow.
type DebugDiagnosis struct {
	RootCause   string  `json:"root_cause"`
	ProposedFix string  `json:"proposed_fix"`
	Confidence  float64 `json:"confidence"` // [0,1]
}

// Completed is a standard completion.
type Completed struct {
	Summary string `json:"summary"`
}

func (RequiresReview) OutcomeType() OutcomeType { return OutcomeRequiresReview }
func (DebugDiagnosis) OutcomeType() OutcomeType { return OutcomeDebugDiagnosis }
func (Completed) OutcomeType() OutcomeType      { return OutcomeCompleted }

func (o RequiresReview) MarshalJSON() ([]byte, error) {
	type alias RequiresReview
	return json.Marshal(struct {
		Type OutcomeType `json:"type"`
		alias
	}{o.OutcomeType(), alias(o)})
}

func (o DebugDiagnosis) MarshalJSON() ([]byte, error) {
	type alias DebugDiagnosis
	return json.Marshal(struct {
		Type OutcomeType `json:"type"`
		alias
	}{o.OutcomeType(), alias(o)})
}

func (o Completed) MarshalJSON() ([]byte, error) {
	type alias Completed
	return json.Marshal(struct {
		Type OutcomeType `json:"type"`
		alias
	}{o.OutcomeType(), alias(o)})
}
