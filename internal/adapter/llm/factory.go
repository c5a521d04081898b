package llm

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// EnvMode selects the upstream client. "MOCK" serves canned streams without network access.
const EnvMode = "GATEWAY_LLM_MODE"

// NewLLMClient returns a MockClient when GATEWAY_LLM_MODE=MOCK and a real Client otherwise.
func NewLLMClient(timeout time.Duration) LLMClient {
	if os.Getenv(EnvMode) == "MOCK" {
		log.Info().Str("env", EnvMode).Msg("using mock LLM client")
		return NewMockClient()
	}
	return NewClient(timeout)
}
