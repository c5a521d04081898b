// Package config provides configuration for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/skills"
)

// DefaultRouterCommand runs the BM25 skills router from the project root.
const DefaultRouterCommand = "npx tsx tools/skills-indexer/src/02-router.ts"

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Skills
	SkillsRouterCmd string
	SkillsRouterDir string
	SkillsIndexPath string
	SkillsBaseDir   string
	SkillsCacheSize int
	MaxSkills       int
	MaxSkillBytes   int
	ArtifactDir     string

	// Worker pool for blocking calls
	WorkerConcurrency int

	// WebSocket settings
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSMaxMessageSize int64

	// Upstream LLM
	UpstreamURL    string
	UpstreamAPIKey string
	LLMTimeout     time.Duration

	Proxy ProxyConfig

	// Observability
	LogLevel        string
	LogPretty       bool
	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
}

// ProxyConfig is the inbound auth and provider dispatch block. It may be
// supplied by the YAML file named in GATEWAY_CONFIG_FILE.
type ProxyConfig struct {
	AllowLANAccess bool                    `yaml:"allow_lan_access"`
	AuthMode       dispatch.AuthMode       `yaml:"auth_mode"`
	APIKey         string                  `yaml:"api_key"`
	GeneratedKey   bool                    `yaml:"-"`
	Port           int                     `yaml:"port"`
	RequestTimeout int                     `yaml:"request_timeout"` // seconds
	CustomMapping  map[string]string       `yaml:"custom_mapping"`
	ZAI            dispatch.ProviderConfig `yaml:"zai"`
}

type fileConfig struct {
	Proxy ProxyConfig `yaml:"proxy"`
}

// Load loads configuration from an optional YAML file and environment variables.
// Environment variables win over the file.
func Load() (*Config, error) {
	proxy := ProxyConfig{
		AuthMode:       dispatch.AuthAuto,
		Port:           8045,
		RequestTimeout: 120,
		CustomMapping:  map[string]string{},
		ZAI:            dispatch.DefaultProviderConfig(),
	}
	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &proxy); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", proxy.Port),
		DatabaseURL:       getEnv("DATABASE_URL", "file:gateway.db?cache=shared&mode=rwc"),
		SkillsRouterCmd:   getEnv("SKILLS_ROUTER_CMD", DefaultRouterCommand),
		SkillsRouterDir:   getEnv("SKILLS_ROUTER_DIR", ""),
		SkillsIndexPath:   getEnv("SKILLS_INDEX_PATH", skills.DefaultIndexPath()),
		SkillsBaseDir:     getEnv("SKILLS_BASE_DIR", ""),
		SkillsCacheSize:   getEnvInt("SKILLS_CACHE_SIZE", 128),
		MaxSkills:         getEnvInt("SKILLS_MAX_COUNT", skills.DefaultMaxSkills),
		MaxSkillBytes:     getEnvInt("SKILLS_MAX_BYTES", skills.DefaultMaxBytes),
		ArtifactDir:       getEnv("ARTIFACT_DIR", ".agent/artifacts"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 8),
		WSPingInterval:    time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout:    time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSReadTimeout:     time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSMaxMessageSize:  int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		UpstreamURL:       getEnv("UPSTREAM_URL", "http://localhost:4000"),
		UpstreamAPIKey:    getEnv("UPSTREAM_API_KEY", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("LOG_PRETTY", false),
		OTelEnabled:       getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelServiceName:   getEnv("OTEL_SERVICE_NAME", "gateway"),
	}

	proxy.AllowLANAccess = getEnvBool("ALLOW_LAN_ACCESS", proxy.AllowLANAccess)
	mode, err := dispatch.ParseAuthMode(getEnv("PROXY_AUTH_MODE", string(proxy.AuthMode)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PROXY_AUTH_MODE: %w", err)
	}
	proxy.AuthMode = mode
	proxy.APIKey = getEnv("PROXY_API_KEY", proxy.APIKey)
	if proxy.APIKey == "" {
		proxy.APIKey = "sk-" + strings.ReplaceAll(uuid.New().String(), "-", "")
		proxy.GeneratedKey = true
	}
	proxy.ZAI.Enabled = getEnvBool("ZAI_ENABLED", proxy.ZAI.Enabled)
	proxy.ZAI.APIKey = getEnv("ZAI_API_KEY", proxy.ZAI.APIKey)
	if raw := os.Getenv("ZAI_DISPATCH_MODE"); raw != "" {
		m, err := dispatch.ParseMode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ZAI_DISPATCH_MODE: %w", err)
		}
		proxy.ZAI.DispatchMode = m
	}
	// custom_mapping applies to every provider and is overridden by provider-specific entries.
	merged := make(map[string]string, len(proxy.CustomMapping)+len(proxy.ZAI.ModelMapping))
	for k, v := range proxy.CustomMapping {
		merged[k] = v
	}
	for k, v := range proxy.ZAI.ModelMapping {
		merged[k] = v
	}
	proxy.ZAI.ModelMapping = merged

	cfg.Proxy = proxy
	cfg.LLMTimeout = time.Duration(getEnvInt("LLM_TIMEOUT_MS", proxy.RequestTimeout*1000)) * time.Millisecond
	return cfg, nil
}

func loadFile(path string, proxy *ProxyConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	fc := fileConfig{Proxy: *proxy}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if fc.Proxy.AuthMode, err = dispatch.ParseAuthMode(string(fc.Proxy.AuthMode)); err != nil {
		return fmt.Errorf("invalid proxy.auth_mode: %w", err)
	}
	if fc.Proxy.ZAI.DispatchMode, err = dispatch.ParseMode(string(fc.Proxy.ZAI.DispatchMode)); err != nil {
		return fmt.Errorf("invalid proxy.zai.dispatch_mode: %w", err)
	}
	*proxy = fc.Proxy
	return nil
}

// ListenAddr returns the bind address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", dispatch.BindAddress(c.Proxy.AllowLANAccess), c.HTTPPort)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
