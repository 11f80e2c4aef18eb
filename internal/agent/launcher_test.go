package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testWorker writes an executable that ignores the worker flags and
// stays alive until killed.
func testWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nsleep 30\n"), 0o755); err != nil {
		t.Fatalf("write worker script: %v", err)
	}
	return path
}

// exitingWorker exits immediately, for testing the worker-died paths.
func exitingWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write worker script: %v", err)
	}
	return path
}

func terminateAll(t *testing.T, l *Launcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.TerminateAll(ctx)
}

func TestLaunchMissingExecutable(t *testing.T) {
	l := NewLauncher("definitely-not-a-real-worker-binary", t.TempDir(), nil)
	if _, err := l.Launch("room-a", "https://r/a", "tok", "+1555", "sip:a@x"); err == nil {
		t.Fatalf("expected error for missing executable")
	}
	if l.Count() != 0 {
		t.Fatalf("failed launch must not be tracked")
	}
}

func TestLaunchTracksAndTerminates(t *testing.T) {
	l := NewLauncher(testWorker(t), t.TempDir(), nil)

	p, err := l.Launch("room-b", "https://r/b", "tok", "+1555", "sip:b@x")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if p.PID <= 0 {
		t.Fatalf("expected pid, got %d", p.PID)
	}
	if l.Count() != 1 {
		t.Fatalf("expected one tracked worker, got %d", l.Count())
	}
	if _, err := os.Stat(p.LogPath); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(p.LogPath, "bot_room-b.log") {
		t.Fatalf("unexpected log path %q", p.LogPath)
	}

	terminateAll(t, l)

	if l.Count() != 0 {
		t.Fatalf("expected empty registry after TerminateAll, got %d", l.Count())
	}
	select {
	case <-p.done:
	default:
		t.Fatalf("expected worker to be reaped")
	}
}

func TestWaitReadyUnblocksOnSignal(t *testing.T) {
	l := NewLauncher(testWorker(t), t.TempDir(), nil)
	if _, err := l.Launch("room-c", "https://r/c", "tok", "+1555", "sip:c@x"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer terminateAll(t, l)

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.MarkReady("room-c")
	}()

	start := time.Now()
	l.WaitReady(context.Background(), "room-c", 5*time.Second)
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatalf("WaitReady did not unblock on ready signal (took %v)", elapsed)
	}
}

func TestWaitReadyFallsBackToTimeout(t *testing.T) {
	l := NewLauncher(testWorker(t), t.TempDir(), nil)
	if _, err := l.Launch("room-d", "https://r/d", "tok", "+1555", "sip:d@x"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer terminateAll(t, l)

	start := time.Now()
	l.WaitReady(context.Background(), "room-d", 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected WaitReady to hold for the settling delay, returned after %v", elapsed)
	}
}

func TestWaitReadyReturnsWhenWorkerDies(t *testing.T) {
	l := NewLauncher(exitingWorker(t), t.TempDir(), nil)
	p, err := l.Launch("room-e", "https://r/e", "tok", "+1555", "sip:e@x")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	<-p.done

	start := time.Now()
	l.WaitReady(context.Background(), "room-e", 5*time.Second)
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatalf("WaitReady must not wait out the timeout for a dead worker (took %v)", elapsed)
	}
}

func TestTerminateAllReapsExitedWorker(t *testing.T) {
	l := NewLauncher(exitingWorker(t), t.TempDir(), nil)
	p, err := l.Launch("room-f", "https://r/f", "tok", "+1555", "sip:f@x")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	<-p.done

	terminateAll(t, l)
	if l.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", l.Count())
	}
}

func TestMarkReadyUnknownRoomIsNoop(t *testing.T) {
	l := NewLauncher(testWorker(t), t.TempDir(), nil)
	l.MarkReady("never-launched")
}

func TestWaitReadyUnknownRoomReturnsImmediately(t *testing.T) {
	l := NewLauncher(testWorker(t), t.TempDir(), nil)
	start := time.Now()
	l.WaitReady(context.Background(), "never-launched", time.Second)
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected immediate return for unknown room")
	}
}
