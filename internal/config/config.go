package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, assembled once at startup and
// treated as read-only afterwards. File values are overridden by environment
// variables, which are overridden by flags in cmd.
type Config struct {
	BotToken  string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	UserToken string `json:"user_token,omitempty" yaml:"user_token,omitempty"`

	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	RequestTimeoutSec int     `json:"request_timeout_sec,omitempty" yaml:"request_timeout_sec,omitempty"`
	MaxRetries        int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryBaseDelaySec int     `json:"retry_base_delay_sec,omitempty" yaml:"retry_base_delay_sec,omitempty"`
	BackoffFactor     float64 `json:"backoff_factor,omitempty" yaml:"backoff_factor,omitempty"`

	Upload UploadConfig `json:"upload,omitempty" yaml:"upload,omitempty"`
	Timer  TimerConfig  `json:"timer,omitempty" yaml:"timer,omitempty"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// UploadConfig holds the size thresholds for upload strategy selection.
// A size equal to a threshold belongs to the smaller tier.
type UploadConfig struct {
	InlineMaxBytes   int64 `json:"inline_max_bytes,omitempty" yaml:"inline_max_bytes,omitempty"`
	SnippetMaxBytes  int64 `json:"snippet_max_bytes,omitempty" yaml:"snippet_max_bytes,omitempty"`
	StandardMaxBytes int64 `json:"standard_max_bytes,omitempty" yaml:"standard_max_bytes,omitempty"`
	ElevatedMaxBytes int64 `json:"elevated_max_bytes,omitempty" yaml:"elevated_max_bytes,omitempty"`
}

// TimerConfig holds per-category default durations in minutes.
type TimerConfig struct {
	StudyMinutes   int `json:"study_minutes,omitempty" yaml:"study_minutes,omitempty"`
	WorkMinutes    int `json:"work_minutes,omitempty" yaml:"work_minutes,omitempty"`
	BreakMinutes   int `json:"break_minutes,omitempty" yaml:"break_minutes,omitempty"`
	MeetingMinutes int `json:"meeting_minutes,omitempty" yaml:"meeting_minutes,omitempty"`
	CustomMinutes  int `json:"custom_minutes,omitempty" yaml:"custom_minutes,omitempty"`

	// MaxFinished caps retained terminal sessions; oldest are evicted first.
	MaxFinished int `json:"max_finished,omitempty" yaml:"max_finished,omitempty"`
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://slack.com/api"
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelaySec <= 0 {
		c.RetryBaseDelaySec = 1
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.Upload.InlineMaxBytes <= 0 {
		c.Upload.InlineMaxBytes = 51200 // 50 KB
	}
	if c.Upload.SnippetMaxBytes <= 0 {
		c.Upload.SnippetMaxBytes = 1 << 20 // 1 MB
	}
	if c.Upload.StandardMaxBytes <= 0 {
		c.Upload.StandardMaxBytes = 100 << 20 // 100 MB
	}
	if c.Upload.ElevatedMaxBytes <= 0 {
		c.Upload.ElevatedMaxBytes = 1 << 30 // 1 GB
	}
	if c.Timer.StudyMinutes <= 0 {
		c.Timer.StudyMinutes = 50
	}
	if c.Timer.WorkMinutes <= 0 {
		c.Timer.WorkMinutes = 25
	}
	if c.Timer.BreakMinutes <= 0 {
		c.Timer.BreakMinutes = 10
	}
	if c.Timer.MeetingMinutes <= 0 {
		c.Timer.MeetingMinutes = 30
	}
	if c.Timer.CustomMinutes <= 0 {
		c.Timer.CustomMinutes = 25
	}
	if c.Timer.MaxFinished <= 0 {
		c.Timer.MaxFinished = 256
	}
}

// RequestTimeout returns the per-attempt HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RetryBaseDelay returns the first retry delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySec) * time.Second
}

// Load reads an optional YAML config file, applies environment overrides,
// then fills in defaults. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. The variable names
// match the ones the original deployment used, so existing .env files keep
// working.
func (c *Config) applyEnv(get func(string) string) {
	if v := strings.TrimSpace(get("SLACK_BOT_TOKEN")); v != "" {
		c.BotToken = v
	}
	if v := strings.TrimSpace(get("SLACK_USER_TOKEN")); v != "" {
		c.UserToken = v
	}
	if v := strings.TrimSpace(get("SLACK_BASE_URL")); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(get("REQUEST_TIMEOUT")); v != "" {
		c.RequestTimeoutSec = parseInt(v, c.RequestTimeoutSec)
	}
	if v := strings.TrimSpace(get("MAX_RETRIES")); v != "" {
		c.MaxRetries = parseInt(v, c.MaxRetries)
	}
	if v := strings.TrimSpace(get("RATE_LIMIT_DELAY")); v != "" {
		c.RetryBaseDelaySec = parseInt(v, c.RetryBaseDelaySec)
	}
	if v := strings.TrimSpace(get("EXPONENTIAL_BACKOFF_BASE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.BackoffFactor = f
		}
	}
	if v := strings.TrimSpace(get("TEXT_MESSAGE_LIMIT")); v != "" {
		c.Upload.InlineMaxBytes = parseInt64(v, c.Upload.InlineMaxBytes)
	}
	if v := strings.TrimSpace(get("MEDIUM_FILE_LIMIT")); v != "" {
		c.Upload.SnippetMaxBytes = parseInt64(v, c.Upload.SnippetMaxBytes)
	}
	if v := strings.TrimSpace(get("STANDARD_FILE_LIMIT")); v != "" {
		c.Upload.StandardMaxBytes = parseInt64(v, c.Upload.StandardMaxBytes)
	}
	if v := strings.TrimSpace(get("LARGE_FILE_LIMIT")); v != "" {
		c.Upload.ElevatedMaxBytes = parseInt64(v, c.Upload.ElevatedMaxBytes)
	}
	if v := strings.TrimSpace(get("DEFAULT_STUDY_MINUTES")); v != "" {
		c.Timer.StudyMinutes = parseInt(v, c.Timer.StudyMinutes)
	}
	if v := strings.TrimSpace(get("DEFAULT_WORK_MINUTES")); v != "" {
		c.Timer.WorkMinutes = parseInt(v, c.Timer.WorkMinutes)
	}
	if v := strings.TrimSpace(get("DEFAULT_BREAK_MINUTES")); v != "" {
		c.Timer.BreakMinutes = parseInt(v, c.Timer.BreakMinutes)
	}
	if v := strings.TrimSpace(get("DEFAULT_MEETING_MINUTES")); v != "" {
		c.Timer.MeetingMinutes = parseInt(v, c.Timer.MeetingMinutes)
	}
	if v := strings.TrimSpace(get("DEFAULT_CUSTOM_MINUTES")); v != "" {
		c.Timer.CustomMinutes = parseInt(v, c.Timer.CustomMinutes)
	}
	if v := strings.TrimSpace(get("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
}

func parseInt(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	return def
}
