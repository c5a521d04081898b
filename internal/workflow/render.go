package workflow

import (
	"fmt"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// Render turns an outcome into assistant message text.
func Render(outcome domain.TaskOutcome) string {
	switch o := outcome.(type) {
	case domain.RequiresReview:
		return fmt.Sprintf("Plan drafted: %s\n\nNext step: %s", o.Artifact, o.NextStep)
	case domain.DebugDiagnosis:
		return fmt.Sprintf("Root cause: %s\nProposed fix: %s\nConfidence: %.0f%%",
			o.RootCause, o.ProposedFix, o.Confidence*100)
	case domain.Completed:
		return o.Summary
	default:
		return ""
	}
}
