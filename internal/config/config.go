// Package config loads refresher settings from the environment and optional .env files.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the refresher configuration.
type Config struct {
	ConfigPath   string
	AccountsDir  string
	CollectorURL string

	CodexBin     string
	FirectlBin   string
	RPCTimeout   time.Duration
	RPCKillGrace time.Duration
	HTTPTimeout  time.Duration
	SinkTimeout  time.Duration

	FireworksBalanceTTL time.Duration
	RefreshJoinTimeout  time.Duration
	RefreshInterval     time.Duration

	AnthropicAPIURL         string
	AnthropicVersion        string
	AnthropicModelDefault   string
	FireworksBaseURLDefault string

	// AuthPhrases overrides the built-in codex "sign in again" phrase rules when set.
	AuthPhrases   []string
	AuthRulesFile string

	JournalDBPath string
	WatchConfig   bool

	Host          string
	Port          string
	AdminPassword string
}

// Default values
const (
	DefaultConfigPath          = "/config/accounts.json"
	DefaultAccountsDir         = "/accounts"
	DefaultCollectorURL        = "http://collector:8080/ingest"
	DefaultAnthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	DefaultAnthropicVersion    = "2023-06-01"
	DefaultAnthropicModel      = "claude-3-5-haiku-latest"
	DefaultFireworksBaseURL    = "https://api.fireworks.ai/inference/v1"
	defaultRPCTimeout          = 10 * time.Second
	defaultRPCKillGrace        = 2 * time.Second
	defaultHTTPTimeout         = 20 * time.Second
	defaultSinkTimeout         = 30 * time.Second
	defaultFireworksBalanceTTL = 300 * time.Second
	defaultRefreshJoinTimeout  = 300 * time.Second
)

// Load reads configuration from .env files and environment variables.
// Variables already present in the environment win over .env values.
func Load() *Config {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	return &Config{
		ConfigPath:   getEnvString("CONFIG_PATH", DefaultConfigPath),
		AccountsDir:  getEnvString("ACCOUNTS_DIR", DefaultAccountsDir),
		CollectorURL: getEnvString("COLLECTOR_URL", DefaultCollectorURL),

		CodexBin:     getEnvString("CODEX_BIN", "codex"),
		FirectlBin:   getEnvString("FIRECTL_BIN", "firectl"),
		RPCTimeout:   getEnvDuration("RPC_TIMEOUT_SEC", defaultRPCTimeout),
		RPCKillGrace: getEnvDuration("RPC_KILL_GRACE_SEC", defaultRPCKillGrace),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT_SEC", defaultHTTPTimeout),
		SinkTimeout:  getEnvDuration("SINK_TIMEOUT_SEC", defaultSinkTimeout),

		FireworksBalanceTTL: getEnvDuration("FIREWORKS_BALANCE_TTL_SEC", defaultFireworksBalanceTTL),
		RefreshJoinTimeout:  getEnvDuration("REFRESH_JOIN_TIMEOUT_SEC", defaultRefreshJoinTimeout),
		RefreshInterval:     getEnvDuration("REFRESH_INTERVAL_SEC", 0),

		AnthropicAPIURL:         getEnvString("ANTHROPIC_API_URL", DefaultAnthropicAPIURL),
		AnthropicVersion:        getEnvString("ANTHROPIC_VERSION", DefaultAnthropicVersion),
		AnthropicModelDefault:   getEnvString("ANTHROPIC_MODEL_DEFAULT", DefaultAnthropicModel),
		FireworksBaseURLDefault: getEnvString("FIREWORKS_BASE_URL_DEFAULT", DefaultFireworksBaseURL),

		AuthPhrases:   getEnvList("AUTH_REQUIRED_PHRASES"),
		AuthRulesFile: getEnvString("AUTH_RULES_FILE", ""),

		JournalDBPath: getEnvString("JOURNAL_DB_PATH", ""),
		WatchConfig:   getEnvBool("WATCH_CONFIG", false),

		Host:          getEnvString("HOST", "0.0.0.0"),
		Port:          getEnvString("PORT", "8080"),
		AdminPassword: getEnvString("ADMIN_PASSWORD", ""),
	}
}

// CollectorBaseURL strips a trailing /ingest so registry pushes can share the base.
func (c *Config) CollectorBaseURL() string {
	u := strings.TrimRight(c.CollectorURL, "/")
	if strings.HasSuffix(u, "/ingest") {
		return strings.TrimRight(strings.TrimSuffix(u, "/ingest"), "/")
	}
	return u
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), ".env"))
	}
	return paths
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s", "1m") or plain seconds ("10", "2.5", "-1").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
