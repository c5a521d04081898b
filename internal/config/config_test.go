package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/skills"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"GATEWAY_CONFIG_FILE", "PROXY_API_KEY", "HTTP_PORT", "ALLOW_LAN_ACCESS",
		"PROXY_AUTH_MODE", "LLM_TIMEOUT_MS", "ZAI_DISPATCH_MODE", "WS_PING_INTERVAL_MS", "WS_MAX_MESSAGE_SIZE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8045, cfg.HTTPPort)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, int64(65536), cfg.WSMaxMessageSize)
	assert.Equal(t, skills.DefaultMaxSkills, cfg.MaxSkills)
	assert.Equal(t, skills.DefaultMaxBytes, cfg.MaxSkillBytes)
	assert.Equal(t, dispatch.AuthAuto, cfg.Proxy.AuthMode)
	assert.Equal(t, dispatch.ModeOff, cfg.Proxy.ZAI.DispatchMode)
	assert.Equal(t, dispatch.DefaultProviderBaseURL, cfg.Proxy.ZAI.BaseURL)
	assert.True(t, cfg.Proxy.GeneratedKey)
	assert.Regexp(t, `^sk-[0-9a-f]{32}$`, cfg.Proxy.APIKey)
	assert.Equal(t, "127.0.0.1:8045", cfg.ListenAddr())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", "")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ALLOW_LAN_ACCESS", "true")
	t.Setenv("PROXY_AUTH_MODE", "STRICT")
	t.Setenv("PROXY_API_KEY", "secret")
	t.Setenv("ZAI_ENABLED", "1")
	t.Setenv("ZAI_DISPATCH_MODE", "pooled")
	t.Setenv("LLM_TIMEOUT_MS", "5000")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr())
	assert.Equal(t, dispatch.AuthStrict, cfg.Proxy.AuthMode)
	assert.Equal(t, "secret", cfg.Proxy.APIKey)
	assert.False(t, cfg.Proxy.GeneratedKey)
	assert.True(t, cfg.Proxy.ZAI.Enabled)
	assert.Equal(t, dispatch.ModePooled, cfg.Proxy.ZAI.DispatchMode)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
}

func TestLoadRejectsBadModes(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", "")
	t.Setenv("PROXY_AUTH_MODE", "sometimes")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy:
  allow_lan_access: true
  auth_mode: all_except_health
  api_key: file-key
  port: 8100
  request_timeout: 30
  custom_mapping:
    gpt-4: glm-4.7
  zai:
    enabled: true
    dispatch_mode: Fallback
    model_mapping:
      claude-3-opus: glm-4.6
`), 0o600))

	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("PROXY_API_KEY", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("ALLOW_LAN_ACCESS", "")
	t.Setenv("PROXY_AUTH_MODE", "")
	t.Setenv("LLM_TIMEOUT_MS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.HTTPPort)
	assert.True(t, cfg.Proxy.AllowLANAccess)
	assert.Equal(t, dispatch.AuthAllExceptHealth, cfg.Proxy.AuthMode)
	assert.Equal(t, "file-key", cfg.Proxy.APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, dispatch.ModeFallback, cfg.Proxy.ZAI.DispatchMode)
	// Unset provider fields keep their defaults.
	assert.Equal(t, dispatch.DefaultProviderBaseURL, cfg.Proxy.ZAI.BaseURL)
	assert.Equal(t, dispatch.DefaultHaikuModel, cfg.Proxy.ZAI.Models.Haiku)
	assert.Equal(t, "glm-4.7", cfg.Proxy.ZAI.ResolveModel("gpt-4"))
	assert.Equal(t, "glm-4.6", cfg.Proxy.ZAI.ResolveModel("claude-3-opus"))
}

func TestLoadFileMissing(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
