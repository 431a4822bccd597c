package config

import "time"

// Config is the full server configuration. Values come from Default(),
// overlaid by an optional json5 config file, overlaid by CODESK_* env vars.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Provider  ProviderConfig  `json:"provider"`
	Workspace WorkspaceConfig `json:"workspace"`
	Security  SecurityConfig  `json:"security"`
	Sessions  SessionsConfig  `json:"sessions"`
	Outputs   OutputsConfig   `json:"outputs"`
	Agent     AgentConfig     `json:"agent"`
	Database  DatabaseConfig  `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	Tracing   TracingConfig   `json:"tracing"`
}

type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	PublicBaseURL string `json:"public_base_url"` // absolute download URLs
	RateLimitRPM  int    `json:"rate_limit_rpm"`  // 0 = disabled
}

type ProviderConfig struct {
	Default string `json:"default"` // native | codex | opencode | nanobot | pi | mock
	Model   string `json:"model"`

	// Native (remote chat-completions API).
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url"`

	// Subprocess providers.
	CodexCommand      string        `json:"codex_command"`
	NanobotCommand    string        `json:"nanobot_command"`
	PiCommand         string        `json:"pi_command"`
	SubprocessTimeout time.Duration `json:"subprocess_timeout"`

	// Opencode sidecar.
	OpencodeBaseURL string        `json:"opencode_base_url"`
	OpencodeTimeout time.Duration `json:"opencode_timeout"`

	// Overall budget for one provider call.
	CallTimeout time.Duration `json:"call_timeout"`
}

type WorkspaceConfig struct {
	Default           string   `json:"default"`            // server-wide workspace root
	ProjectsAllowlist []string `json:"projects_allowlist"` // roots project paths must live under
}

// SecurityConfig holds the server capability ceiling. Request presets and
// role gates can only narrow these.
type SecurityConfig struct {
	EnableShell    bool `json:"enable_shell"`
	EnableWrite    bool `json:"enable_write"`
	EnableBrowser  bool `json:"enable_browser"`
	AllowDangerous bool `json:"allow_dangerous"` // no-sandbox ceiling
}

type SessionsConfig struct {
	TTL                time.Duration `json:"ttl"`
	MaxSessions        int           `json:"max_sessions"`
	MaxSessionMessages int           `json:"max_session_messages"`
	MaxContextChars    int           `json:"max_context_chars"`
	SnapshotDir        string        `json:"snapshot_dir"` // JSON mirrors for /history/search
}

type OutputsConfig struct {
	Dir        string        `json:"dir"`
	TTL        time.Duration `json:"ttl"`
	GCSchedule string        `json:"gc_schedule"` // cron expression for the sweep
}

type AgentConfig struct {
	MaxSteps           int `json:"max_steps"`
	MaxToolOutputChars int `json:"max_tool_output_chars"`
	MaxFileReadChars   int `json:"max_file_read_chars"`
}

type DatabaseConfig struct {
	// Postgres DSN (from CODESK_POSTGRES_DSN only; never in the config file).
	// Empty = use SQLite at SQLitePath.
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path"`
}

type AuthConfig struct {
	// Secret signs bearer tokens and download tokens (env only).
	Secret           string        `json:"-"`
	DownloadTokenTTL time.Duration `json:"download_token_ttl"`
}

type TracingConfig struct {
	// OTLP HTTP endpoint; empty disables export.
	Endpoint string `json:"endpoint"`
}
