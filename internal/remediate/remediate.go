// Package remediate applies repair side effects: writing fixed files,
// restarting the service, and syncing the code repository.
package remediate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/emonet/fixwatch/internal/config"
)

const commandTimeout = 2 * time.Minute

// Runner executes remediation commands for a repaired service.
type Runner struct {
	cfg *config.RemediateConfig
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.RemediateConfig) *Runner {
	return &Runner{cfg: cfg}
}

// WriteFix replaces the target file's content, keeping the previous version
// next to it as a .bak file so a bad fix can be rolled back by hand.
func (r *Runner) WriteFix(path, content string) error {
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing fix: %w", err)
	}
	slog.Info("fix written", "path", path, "bytes", len(content))
	return nil
}

// RestartService restarts the service through the configured supervisor
// command, e.g. "supervisorctl restart pocketbase".
func (r *Runner) RestartService(ctx context.Context, service string) error {
	if r.cfg.RestartCommand == "" {
		return nil
	}
	if err := r.run(ctx, "", r.cfg.RestartCommand, "restart", service); err != nil {
		return fmt.Errorf("restarting %s: %w", service, err)
	}
	slog.Info("service restarted", "service", service)
	return nil
}

// SyncRepo commits and pushes the repaired code directory. The commit is made
// even when the tree is unchanged so every repair attempt leaves a record.
func (r *Runner) SyncRepo(ctx context.Context, codeDir string) error {
	if !r.cfg.GitSync {
		return nil
	}

	repo, err := filepath.Abs(codeDir)
	if err != nil {
		return fmt.Errorf("resolving repo path: %w", err)
	}

	// Identity must be set per-repo: the daemon often runs as a user with no
	// global git config, which fails the commit with status 128.
	if r.cfg.GitUserEmail != "" {
		if err := r.run(ctx, repo, "git", "config", "user.email", r.cfg.GitUserEmail); err != nil {
			return err
		}
	}
	if r.cfg.GitUserName != "" {
		if err := r.run(ctx, repo, "git", "config", "user.name", r.cfg.GitUserName); err != nil {
			return err
		}
	}
	// Ignore failure: the directory may already be marked safe.
	_ = r.run(ctx, "", "git", "config", "--global", "--add", "safe.directory", repo)

	if err := r.run(ctx, repo, "git", "add", "."); err != nil {
		return err
	}

	msg := fmt.Sprintf("Auto-fix: %s", time.Now().Format("2006-01-02 15:04:05"))
	if err := r.run(ctx, repo, "git", "commit", "--allow-empty", "-m", msg); err != nil {
		return err
	}

	if err := r.run(ctx, repo, "git", "push", "origin", "main"); err != nil {
		return err
	}

	slog.Info("repo synced", "repo", repo, "commit", msg)
	return nil
}

func (r *Runner) run(ctx context.Context, dir, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, detail)
	}
	return nil
}
