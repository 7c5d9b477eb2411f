package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.BaseURL != "https://slack.com/api" {
		t.Fatalf("base url %q", cfg.BaseURL)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("timeout %s", cfg.RequestTimeout())
	}
	if cfg.MaxRetries != 3 || cfg.BackoffFactor != 2.0 {
		t.Fatalf("retry defaults %d / %f", cfg.MaxRetries, cfg.BackoffFactor)
	}
	if cfg.Upload.InlineMaxBytes != 51200 || cfg.Upload.SnippetMaxBytes != 1<<20 ||
		cfg.Upload.StandardMaxBytes != 100<<20 || cfg.Upload.ElevatedMaxBytes != 1<<30 {
		t.Fatalf("upload thresholds %+v", cfg.Upload)
	}
	if cfg.Timer.StudyMinutes != 50 || cfg.Timer.WorkMinutes != 25 ||
		cfg.Timer.BreakMinutes != 10 || cfg.Timer.MeetingMinutes != 30 || cfg.Timer.CustomMinutes != 25 {
		t.Fatalf("timer defaults %+v", cfg.Timer)
	}
	if cfg.Timer.MaxFinished != 256 {
		t.Fatalf("max finished %d", cfg.Timer.MaxFinished)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SLACK_BOT_TOKEN":       "xoxb-env",
		"SLACK_USER_TOKEN":      "xoxp-env",
		"REQUEST_TIMEOUT":       "45",
		"MAX_RETRIES":           "5",
		"TEXT_MESSAGE_LIMIT":    "1000",
		"DEFAULT_STUDY_MINUTES": "90",
		"LOG_LEVEL":             "debug",
	}
	cfg := &Config{}
	cfg.applyEnv(func(k string) string { return env[k] })
	cfg.applyDefaults()

	if cfg.BotToken != "xoxb-env" || cfg.UserToken != "xoxp-env" {
		t.Fatalf("tokens %q / %q", cfg.BotToken, cfg.UserToken)
	}
	if cfg.RequestTimeoutSec != 45 || cfg.MaxRetries != 5 {
		t.Fatalf("request settings %d / %d", cfg.RequestTimeoutSec, cfg.MaxRetries)
	}
	if cfg.Upload.InlineMaxBytes != 1000 {
		t.Fatalf("inline limit %d", cfg.Upload.InlineMaxBytes)
	}
	if cfg.Timer.StudyMinutes != 90 {
		t.Fatalf("study minutes %d", cfg.Timer.StudyMinutes)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
}

func TestApplyEnvBadNumberKeepsPrior(t *testing.T) {
	cfg := &Config{MaxRetries: 4}
	cfg.applyEnv(func(k string) string {
		if k == "MAX_RETRIES" {
			return "many"
		}
		return ""
	})
	if cfg.MaxRetries != 4 {
		t.Fatalf("bad env value should keep the prior setting, got %d", cfg.MaxRetries)
	}
}

func TestLoadYAML(t *testing.T) {
	for _, k := range []string{"SLACK_BOT_TOKEN", "MAX_RETRIES", "TEXT_MESSAGE_LIMIT", "DEFAULT_WORK_MINUTES", "DEFAULT_STUDY_MINUTES"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
bot_token: xoxb-file
max_retries: 7
upload:
  inline_max_bytes: 2048
timer:
  work_minutes: 45
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BotToken != "xoxb-file" {
		t.Fatalf("bot token %q", cfg.BotToken)
	}
	if cfg.MaxRetries != 7 {
		t.Fatalf("max retries %d", cfg.MaxRetries)
	}
	if cfg.Upload.InlineMaxBytes != 2048 {
		t.Fatalf("inline limit %d", cfg.Upload.InlineMaxBytes)
	}
	if cfg.Timer.WorkMinutes != 45 {
		t.Fatalf("work minutes %d", cfg.Timer.WorkMinutes)
	}
	// Unset fields still take defaults.
	if cfg.Timer.StudyMinutes != 50 {
		t.Fatalf("study minutes %d", cfg.Timer.StudyMinutes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("empty path skips the file step: %v", err)
	}
}
