package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".codesk")
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         18620,
			RateLimitRPM: 0,
		},
		Provider: ProviderConfig{
			Default:           "native",
			Model:             "gpt-4.1",
			BaseURL:           "https://api.openai.com/v1",
			CodexCommand:      "codex",
			NanobotCommand:    "nanobot",
			PiCommand:         "pi",
			SubprocessTimeout: 10 * time.Minute,
			OpencodeBaseURL:   "http://127.0.0.1:4096",
			OpencodeTimeout:   5 * time.Minute,
			CallTimeout:       5 * time.Minute,
		},
		Workspace: WorkspaceConfig{
			Default: filepath.Join(dataDir, "workspace"),
		},
		Security: SecurityConfig{
			EnableShell:    false,
			EnableWrite:    true,
			EnableBrowser:  false,
			AllowDangerous: false,
		},
		Sessions: SessionsConfig{
			TTL:                2 * time.Hour,
			MaxSessions:        200,
			MaxSessionMessages: 120,
			MaxContextChars:    240_000,
			SnapshotDir:        filepath.Join(dataDir, "history"),
		},
		Outputs: OutputsConfig{
			Dir:        filepath.Join(dataDir, "outputs"),
			TTL:        72 * time.Hour,
			GCSchedule: "*/30 * * * *",
		},
		Agent: AgentConfig{
			MaxSteps:           12,
			MaxToolOutputChars: 20_000,
			MaxFileReadChars:   60_000,
		},
		Database: DatabaseConfig{
			SQLitePath: filepath.Join(dataDir, "codesk.db"),
		},
		Auth: AuthConfig{
			DownloadTokenTTL: 30 * time.Minute,
		},
	}
}

// Load reads config from a json5 file, then overlays env vars.
// A missing file is not an error; defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("config: max_steps must be >= 1")
	}
	if c.Sessions.MaxSessionMessages < 1 {
		return fmt.Errorf("config: max_session_messages must be >= 1")
	}
	if c.Workspace.Default == "" {
		return fmt.Errorf("config: workspace default must be set")
	}
	return nil
}

// applyEnv overlays CODESK_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	envStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	envDur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	envStr("CODESK_HOST", &cfg.Server.Host)
	envInt("CODESK_PORT", &cfg.Server.Port)
	envStr("CODESK_PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL)
	envInt("CODESK_RATE_LIMIT_RPM", &cfg.Server.RateLimitRPM)

	envStr("CODESK_PROVIDER", &cfg.Provider.Default)
	envStr("CODESK_MODEL", &cfg.Provider.Model)
	envStr("CODESK_API_KEY", &cfg.Provider.APIKey)
	envStr("CODESK_API_BASE_URL", &cfg.Provider.BaseURL)
	envStr("CODESK_CODEX_COMMAND", &cfg.Provider.CodexCommand)
	envStr("CODESK_NANOBOT_COMMAND", &cfg.Provider.NanobotCommand)
	envStr("CODESK_PI_COMMAND", &cfg.Provider.PiCommand)
	envStr("CODESK_OPENCODE_BASE_URL", &cfg.Provider.OpencodeBaseURL)
	envDur("CODESK_PROVIDER_TIMEOUT", &cfg.Provider.CallTimeout)

	envStr("CODESK_WORKSPACE", &cfg.Workspace.Default)
	if v := strings.TrimSpace(os.Getenv("CODESK_PROJECTS_ROOT")); v != "" {
		var roots []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				roots = append(roots, p)
			}
		}
		cfg.Workspace.ProjectsAllowlist = roots
	}

	envBool("CODESK_ENABLE_SHELL", &cfg.Security.EnableShell)
	envBool("CODESK_ENABLE_WRITE", &cfg.Security.EnableWrite)
	envBool("CODESK_ENABLE_BROWSER", &cfg.Security.EnableBrowser)
	envBool("CODESK_ALLOW_DANGEROUS", &cfg.Security.AllowDangerous)

	envDur("CODESK_SESSION_TTL", &cfg.Sessions.TTL)
	envInt("CODESK_MAX_SESSIONS", &cfg.Sessions.MaxSessions)
	envInt("CODESK_MAX_SESSION_MESSAGES", &cfg.Sessions.MaxSessionMessages)
	envInt("CODESK_MAX_CONTEXT_CHARS", &cfg.Sessions.MaxContextChars)
	envStr("CODESK_SNAPSHOT_DIR", &cfg.Sessions.SnapshotDir)

	envStr("CODESK_OUTPUTS_DIR", &cfg.Outputs.Dir)
	envDur("CODESK_OUTPUTS_TTL", &cfg.Outputs.TTL)
	envStr("CODESK_GC_SCHEDULE", &cfg.Outputs.GCSchedule)

	envInt("CODESK_MAX_STEPS", &cfg.Agent.MaxSteps)
	envInt("CODESK_MAX_TOOL_OUTPUT_CHARS", &cfg.Agent.MaxToolOutputChars)
	envInt("CODESK_MAX_FILE_READ_CHARS", &cfg.Agent.MaxFileReadChars)

	envStr("CODESK_POSTGRES_DSN", &cfg.Database.PostgresDSN)
	envStr("CODESK_SQLITE_PATH", &cfg.Database.SQLitePath)

	envStr("CODESK_AUTH_SECRET", &cfg.Auth.Secret)
	envDur("CODESK_DOWNLOAD_TOKEN_TTL", &cfg.Auth.DownloadTokenTTL)

	envStr("CODESK_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
}

// ApplySafeOverrides copies the hot-reloadable subset of next onto c.
// Capability ceilings and budgets may change at runtime; addresses,
// credentials, and storage paths require a restart.
func (c *Config) ApplySafeOverrides(next *Config) {
	c.Security = next.Security
	c.Agent = next.Agent
	c.Sessions.MaxSessionMessages = next.Sessions.MaxSessionMessages
	c.Sessions.MaxContextChars = next.Sessions.MaxContextChars
	c.Server.RateLimitRPM = next.Server.RateLimitRPM
}
