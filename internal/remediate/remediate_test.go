package remediate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/emonet/fixwatch/internal/config"
)

func TestWriteFixCreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pb.js")
	if err := os.WriteFile(path, []byte("broken content"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(&config.RemediateConfig{})
	if err := r.WriteFix(path, "fixed content"); err != nil {
		t.Fatalf("WriteFix: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fixed content" {
		t.Errorf("file = %q", got)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	if string(bak) != "broken content" {
		t.Errorf("backup = %q", bak)
	}
}

func TestWriteFixNewFileNoBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.js")

	r := NewRunner(&config.RemediateConfig{})
	if err := r.WriteFix(path, "new content"); err != nil {
		t.Fatalf("WriteFix: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("backup should not exist for a new file")
	}
}

func TestRestartServiceDisabled(t *testing.T) {
	r := NewRunner(&config.RemediateConfig{RestartCommand: ""})
	if err := r.RestartService(context.Background(), "pocketbase"); err != nil {
		t.Errorf("RestartService with no command should be a no-op, got %v", err)
	}
}

func TestRestartServiceCommandFailure(t *testing.T) {
	r := NewRunner(&config.RemediateConfig{RestartCommand: "/nonexistent/supervisorctl"})
	if err := r.RestartService(context.Background(), "pocketbase"); err == nil {
		t.Error("expected error for missing restart command")
	}
}

func TestSyncRepoDisabled(t *testing.T) {
	r := NewRunner(&config.RemediateConfig{GitSync: false})
	if err := r.SyncRepo(context.Background(), t.TempDir()); err != nil {
		t.Errorf("SyncRepo disabled should be a no-op, got %v", err)
	}
}
