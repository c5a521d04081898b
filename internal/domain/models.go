package domain

import "time"

// Session represents a persisted unit of work (a task session bound to a repository).
type Session struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	RepoName   string        `json:"repo_name"`
	BranchName *string       `json:"branch_name,omitempty"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Message represents a single message in a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillCandidate is one ranked skill returned by the skills router.
type SkillCandidate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
	SizeBytes    int      `json:"size_bytes"`
}

// SelectionLimits records the requested and achieved selection budget.
type SelectionLimits struct {
	MaxSkills    int `json:"max_skills"`
	MaxBytes     int `json:"max_bytes"`
	ActualSkills int `json:"actual_skills"`
	ActualBytes  int `json:"actual_bytes"`
}

// SkillSelectionResult is the output of the skills router.
type SkillSelectionResult struct {
	Persona    string           `json:"persona"`
	Category   string           `json:"category"`
	Skills     []SkillCandidate `json:"skills"`
	TotalBytes int              `json:"total_bytes"`
	Limits     SelectionLimits  `json:"limits"`
}

// SkillIDs returns the candidate identifiers in ranking order.
func (r *SkillSelectionResult) SkillIDs() []string {
	ids := make([]string, 0, len(r.Skills))
	for _, s := range r.Skills {
		ids = append(ids, s.ID)
	}
	return ids
}
