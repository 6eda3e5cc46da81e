package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Instance.ID == "" {
		t.Error("default instance ID should not be empty")
	}
	if cfg.Escalation.Cooldown.Duration != 10*time.Minute {
		t.Errorf("default cooldown = %v, want %v", cfg.Escalation.Cooldown.Duration, 10*time.Minute)
	}
	if cfg.Escalation.CrashWindow.Duration != 5*time.Minute {
		t.Errorf("default crash window = %v, want %v", cfg.Escalation.CrashWindow.Duration, 5*time.Minute)
	}
	if cfg.Escalation.CrashLimit != 5 {
		t.Errorf("default crash limit = %d, want 5", cfg.Escalation.CrashLimit)
	}
	if cfg.Sink.TokenEnv != "PERSONAL_ACCESS_TOKEN" {
		t.Errorf("default token env = %q", cfg.Sink.TokenEnv)
	}
	if len(cfg.Sink.Labels) != 2 {
		t.Errorf("default label count = %d, want 2", len(cfg.Sink.Labels))
	}
	if cfg.Oracle.Enabled {
		t.Error("oracle should be disabled by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("loading nonexistent config should return defaults, got error: %v", err)
	}
	if cfg.Escalation.CrashLimit != 5 {
		t.Errorf("crash limit = %d, want default 5", cfg.Escalation.CrashLimit)
	}
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[instance]
id = "prod-1"

[[service]]
name = "pocketbase"
log_path = "/home/pb/error.log"
code_dir = "/home/pb/pb_hooks"
code_ext = ".js"
suppress = 'PocketBase v[\d.]+ .*started'

[[service]]
name = "ai-proxy"
log_path = "/home/ai-proxy/error.log"
code_dir = "/home/ai-proxy"
code_ext = ".py"

[escalation]
cooldown = "2m"
crash_window = "10m"
crash_limit = 3

[sink]
repo = "emonet1/index"
labels = ["auto-fix"]

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Instance.ID != "prod-1" {
		t.Errorf("instance.id = %q, want %q", cfg.Instance.ID, "prod-1")
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("service count = %d, want 2", len(cfg.Services))
	}
	pb := cfg.Service("pocketbase")
	if pb == nil {
		t.Fatal("service pocketbase not found")
	}
	if pb.LogPath != "/home/pb/error.log" {
		t.Errorf("log_path = %q", pb.LogPath)
	}
	if pb.CodeExt != ".js" {
		t.Errorf("code_ext = %q", pb.CodeExt)
	}
	if pb.Suppress == "" {
		t.Error("suppress should be set")
	}
	if cfg.Escalation.Cooldown.Duration != 2*time.Minute {
		t.Errorf("cooldown = %v, want 2m", cfg.Escalation.Cooldown.Duration)
	}
	if cfg.Escalation.CrashWindow.Duration != 10*time.Minute {
		t.Errorf("crash_window = %v, want 10m", cfg.Escalation.CrashWindow.Duration)
	}
	if cfg.Escalation.CrashLimit != 3 {
		t.Errorf("crash_limit = %d, want 3", cfg.Escalation.CrashLimit)
	}
	if cfg.Sink.Repo != "emonet1/index" {
		t.Errorf("sink.repo = %q", cfg.Sink.Repo)
	}
	if len(cfg.Sink.Labels) != 1 {
		t.Errorf("label count = %d, want 1", len(cfg.Sink.Labels))
	}
	// Unset sections keep defaults.
	if cfg.Sink.APIURL != "https://api.github.com" {
		t.Errorf("sink.api_url = %q, want default", cfg.Sink.APIURL)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("not valid [[[ toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestValidateRejectsBadServices(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing log_path",
			content: `
[[service]]
name = "broken"
`,
		},
		{
			name: "missing name",
			content: `
[[service]]
log_path = "/tmp/x.log"
`,
		},
		{
			name: "duplicate name",
			content: `
[[service]]
name = "dup"
log_path = "/tmp/a.log"

[[service]]
name = "dup"
log_path = "/tmp/b.log"
`,
		},
		{
			name: "zero crash limit",
			content: `
[escalation]
crash_limit = 0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestServiceLookup(t *testing.T) {
	cfg := Default()
	cfg.Services = []ServiceConfig{{Name: "a", LogPath: "/tmp/a.log"}}

	if cfg.Service("a") == nil {
		t.Error("Service(a) should be found")
	}
	if cfg.Service("b") != nil {
		t.Error("Service(b) should be nil")
	}
}

func TestDBPathOverride(t *testing.T) {
	cfg := Default()
	cfg.DB.Path = "/tmp/custom.db"
	if cfg.DBPath() != "/tmp/custom.db" {
		t.Errorf("DBPath = %q, want override", cfg.DBPath())
	}
}
