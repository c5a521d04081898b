// Package workflow parses leading workflow commands and executes their strategies.
package workflow

import (
	"strings"
	"unicode"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// commands are checked in order; the first prefix match wins.
var commands = []struct {
	prefix string
	intent domain.WorkflowIntent
}{
	{"/plan", domain.IntentPlan},
	{"/debug", domain.IntentDebug},
	{"/create", domain.IntentCreate},
	{"/test", domain.IntentTest},
	{"/deploy", domain.IntentDeploy},
}

var personas = map[domain.WorkflowIntent]string{
	domain.IntentPlan:   "architect",
	domain.IntentDebug:  "troubleshooter",
	domain.IntentCreate: "builder",
	domain.IntentTest:   "qa-engineer",
	domain.IntentDeploy: "devops-engineer",
}

var descriptions = map[domain.WorkflowIntent]string{
	domain.IntentPlan:   "Creating structured implementation plan",
	domain.IntentDebug:  "Performing systematic troubleshooting",
	domain.IntentCreate: "Generating new feature",
	domain.IntentTest:   "Writing and executing tests",
	domain.IntentDeploy: "Executing deployment procedures",
}

// Parse returns the workflow intent named by the leading command of text.
func Parse(text string) (domain.WorkflowIntent, bool) {
	normalized := strings.ToLower(strings.TrimLeftFunc(text, unicode.IsSpace))
	for _, c := range commands {
		if strings.HasPrefix(normalized, c.prefix) {
			return c.intent, true
		}
	}
	return "", false
}

// PersonaFor returns the persona forced by an intent.
func PersonaFor(intent domain.WorkflowIntent) string {
	return personas[intent]
}

// DescriptionFor returns a short human description of an intent.
func DescriptionFor(intent domain.WorkflowIntent) string {
	return descriptions[intent]
}

// Intents lists every known workflow intent in command order.
func Intents() []domain.WorkflowIntent {
	out := make([]domain.WorkflowIntent, 0, len(commands))
	for _, c := range commands {
		out = append(out, c.intent)
	}
	return out
}
