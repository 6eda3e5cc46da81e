package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emonet/fixwatch/internal/config"
)

func waitForEvent(t *testing.T, ch <-chan ChangeEvent, service string) ChangeEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed while waiting")
			}
			if ev.Service == service {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change event for %s", service)
		}
	}
}

func TestFSSourceEmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "svc.log")
	if err := os.WriteFile(logPath, []byte("seed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFSSource([]config.ServiceConfig{
		{Name: "svc", LogPath: logPath},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("error: boom\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ev := waitForEvent(t, ch, "svc")
	if ev.Path != logPath {
		t.Errorf("event path = %q, want %q", ev.Path, logPath)
	}
}

func TestFSSourceEmitsOnCreate(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "late.log")

	src := NewFSSource([]config.ServiceConfig{
		{Name: "late", LogPath: logPath},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	// The log file appears only after watching started.
	if err := os.WriteFile(logPath, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitForEvent(t, ch, "late")
}

func TestFSSourceIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "svc.log")
	otherPath := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(logPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFSSource([]config.ServiceConfig{
		{Name: "svc", LogPath: logPath},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	if err := os.WriteFile(otherPath, []byte("noise\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected event for unrelated file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFSSourceFailsWithoutWatchableDirs(t *testing.T) {
	src := NewFSSource([]config.ServiceConfig{
		{Name: "ghost", LogPath: "/nonexistent-dir-fixwatch/svc.log"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := src.Events(ctx); err == nil {
		t.Fatal("expected error when no directory can be watched")
	}
}

func TestFSSourceStopClosesChannel(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "svc.log")
	if err := os.WriteFile(logPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFSSource([]config.ServiceConfig{
		{Name: "svc", LogPath: logPath},
	})

	ch, err := src.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	src.Stop()

	select {
	case _, ok := <-ch:
		if ok {
			// Drain a possible in-flight event, then expect close.
			select {
			case _, ok := <-ch:
				if ok {
					t.Error("channel should close after Stop")
				}
			case <-time.After(2 * time.Second):
				t.Error("channel did not close after Stop")
			}
		}
	case <-time.After(2 * time.Second):
		t.Error("channel did not close after Stop")
	}
}
