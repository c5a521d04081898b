// Package dispatch decides which upstream provider serves a proxied request
// and whether inbound requests must authenticate.
package dispatch

import (
	"fmt"
	"strings"
)

// Mode controls how the secondary provider takes part in routing.
type Mode string

const (
	// ModeOff never routes to the provider.
	ModeOff Mode = "off"
	// ModeExclusive sends all compatible-protocol traffic to the provider.
	ModeExclusive Mode = "exclusive"
	// ModePooled makes the provider one more candidate in the shared pool.
	ModePooled Mode = "pooled"
	// ModeFallback uses the provider only when the pool is unavailable.
	ModeFallback Mode = "fallback"
)

// ParseMode validates a dispatch mode string. Empty means off.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeOff, nil
	case ModeOff, ModeExclusive, ModePooled, ModeFallback:
		return m, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// Protocols a provider can speak.
const (
	ProtocolOpenAI    = "openai"
	ProtocolAnthropic = "anthropic"
)

// ModelDefaults maps coarse model families to upstream model ids.
type ModelDefaults struct {
	Opus   string `yaml:"opus"`
	Sonnet string `yaml:"sonnet"`
	Haiku  string `yaml:"haiku"`
}

// ProviderConfig configures the secondary (z.ai style) provider.
type ProviderConfig struct {
	Enabled      bool              `yaml:"enabled"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	Protocol     string            `yaml:"protocol"`
	DispatchMode Mode              `yaml:"dispatch_mode"`
	ModelMapping map[string]string `yaml:"model_mapping"`
	Models       ModelDefaults     `yaml:"models"`
}

// Provider defaults.
const (
	DefaultProviderBaseURL = "https://api.z.ai/api/anthropic"
	DefaultOpusModel       = "glm-4.7"
	DefaultSonnetModel     = "glm-4.7"
	DefaultHaikuModel      = "glm-4.5-air"
)

// DefaultProviderConfig returns a disabled provider with stock model defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:      DefaultProviderBaseURL,
		Protocol:     ProtocolAnthropic,
		DispatchMode: ModeOff,
		ModelMapping: map[string]string{},
		Models: ModelDefaults{
			Opus:   DefaultOpusModel,
			Sonnet: DefaultSonnetModel,
			Haiku:  DefaultHaikuModel,
		},
	}
}

// Participates reports whether the provider may receive traffic of protocol.
func (p ProviderConfig) Participates(protocol string) bool {
	return p.Enabled && p.DispatchMode != ModeOff && p.DispatchMode != "" &&
		strings.EqualFold(p.Protocol, protocol)
}

// ResolveModel maps an incoming model id to the provider's model id. Explicit
// mappings win; otherwise the id is classified into the opus, haiku or sonnet family.
func (p ProviderConfig) ResolveModel(incoming string) string {
	if mapped, ok := p.ModelMapping[incoming]; ok && mapped != "" {
		return mapped
	}
	lower := strings.ToLower(incoming)
	switch {
	case strings.Contains(lower, "opus"):
		return p.Models.Opus
	case strings.Contains(lower, "haiku"):
		return p.Models.Haiku
	default:
		return p.Models.Sonnet
	}
}

// AuthMode is the inbound authorization policy.
type AuthMode string

const (
	AuthOff             AuthMode = "off"
	AuthStrict          AuthMode = "strict"
	AuthAllExceptHealth AuthMode = "all_except_health"
	AuthAuto            AuthMode = "auto"
)

// HealthPath is exempt from auth in all_except_health mode.
const HealthPath = "/healthz"

// ParseAuthMode validates an auth mode string. Empty means auto.
func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AuthAuto, nil
	case AuthOff, AuthStrict, AuthAllExceptHealth, AuthAuto:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

// Resolve replaces auto with a concrete mode: off when bound to loopback only,
// all_except_health when LAN access is allowed.
func (m AuthMode) Resolve(allowLAN bool) AuthMode {
	if m != AuthAuto {
		return m
	}
	if allowLAN {
		return AuthAllExceptHealth
	}
	return AuthOff
}

// RequiresAuth reports whether a request to path must authenticate. The mode
// must already be resolved.
func (m AuthMode) RequiresAuth(path string) bool {
	switch m {
	case AuthStrict:
		return true
	case AuthAllExceptHealth:
		return path != HealthPath
	default:
		return false
	}
}

// BindAddress returns the listen host for the LAN access setting.
func BindAddress(allowLAN bool) string {
	if allowLAN {
		return "0.0.0.0"
	}
	return "127.0.0.1"
}
