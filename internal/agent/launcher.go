package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// Launcher starts and tracks voice-agent worker processes. The server
// process owns every launched worker for the rest of its lifetime;
// handles live in a registry keyed by room name so they can be
// terminated deterministically at shutdown.
type Launcher struct {
	command string
	logDir  string
	log     *slog.Logger

	mu    sync.Mutex
	procs map[string]*Process
}

// Process is one tracked worker.
type Process struct {
	RoomName string
	PID      int
	LogPath  string

	cmd       *exec.Cmd
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

func NewLauncher(command, logDir string, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{
		command: command,
		logDir:  logDir,
		log:     log,
		procs:   make(map[string]*Process),
	}
}

// Launch spawns the worker bound to a room, handing it the room URL,
// access token, remote party's number, and the room's SIP URI. Worker
// output goes to a call-scoped log file. Launch does not wait for the
// worker to join the room; see WaitReady.
func (l *Launcher) Launch(roomName, roomURL, token, callerNumber, sipURI string) (*Process, error) {
	if _, err := exec.LookPath(l.command); err != nil {
		return nil, fmt.Errorf("agent: worker executable not found: %w", err)
	}

	logPath := filepath.Join(l.logDir, "bot_"+roomName+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("agent: creating worker log: %w", err)
	}

	cmd := exec.Command(l.command,
		"-u", roomURL,
		"-t", token,
		"-n", callerNumber,
		"-s", sipURI,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("agent: starting worker: %w", err)
	}

	p := &Process{
		RoomName: roomName,
		PID:      cmd.Process.Pid,
		LogPath:  logPath,
		cmd:      cmd,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}

	// Single reaper per worker; everything else waits on p.done.
	go func() {
		_ = cmd.Wait()
		logFile.Close()
		close(p.done)
	}()

	l.mu.Lock()
	l.procs[roomName] = p
	l.mu.Unlock()

	l.log.Info("agent worker started", "room", roomName, "pid", p.PID, "log", logPath)
	return p, nil
}

// MarkReady records that the worker for roomName has joined its room.
// Signals for unknown rooms are ignored (the worker may outlive the
// registry entry, or the callback may be misdirected).
func (l *Launcher) MarkReady(roomName string) {
	l.mu.Lock()
	p := l.procs[roomName]
	l.mu.Unlock()
	if p == nil {
		l.log.Warn("ready signal for unknown worker", "room", roomName)
		return
	}
	p.readyOnce.Do(func() { close(p.ready) })
}

// WaitReady blocks until the worker for roomName reports it has joined,
// or until timeout elapses. Workers that never signal fall back to the
// fixed settling delay, so orchestration proceeds either way; the
// caller only loses early audio if the worker is genuinely late.
func (l *Launcher) WaitReady(ctx context.Context, roomName string, timeout time.Duration) {
	l.mu.Lock()
	p := l.procs[roomName]
	l.mu.Unlock()
	if p == nil {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.ready:
	case <-p.done:
		l.log.Warn("worker exited before signalling ready", "room", roomName)
	case <-timer.C:
		l.log.Warn("worker did not signal ready in time, proceeding", "room", roomName, "timeout", timeout)
	case <-ctx.Done():
	}
}

// Count reports how many workers are currently tracked.
func (l *Launcher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

// TerminateAll signals every tracked worker and reaps it, escalating to
// SIGKILL if a worker ignores SIGTERM. Called once at server shutdown.
func (l *Launcher) TerminateAll(ctx context.Context) {
	l.mu.Lock()
	procs := make([]*Process, 0, len(l.procs))
	for _, p := range l.procs {
		procs = append(procs, p)
	}
	l.procs = make(map[string]*Process)
	l.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.done:
			continue
		default:
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-p.done:
		case <-ctx.Done():
			_ = p.cmd.Process.Kill()
			<-p.done
		}
		l.log.Info("agent worker terminated", "room", p.RoomName, "pid", p.PID)
	}
}
