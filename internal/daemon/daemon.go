// Package daemon manages the background consumer process: PID file
// handling, detached re-exec, and the job manager driving one-off sync
// operations submitted over the ops API.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	dirName   = ".sheetsink"
	childMark = "_SHEETSINK_DAEMON"
)

// statePath returns ~/.sheetsink/<name>, creating the directory if needed.
func statePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// LogPath returns the path the detached daemon appends its output to.
func LogPath() (string, error) {
	return statePath("sheetsink.log")
}

func pidPath() (string, error) {
	return statePath("sheetsink.pid")
}

// WritePID records the current process in the PID file.
func WritePID() error {
	path, err := pidPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// RemovePID removes the PID file.
func RemovePID() {
	if path, err := pidPath(); err == nil {
		os.Remove(path) //nolint:errcheck
	}
}

func readPID() int {
	path, err := pidPath()
	if err != nil {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// alive probes a process with signal 0.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// IsRunning reports whether the recorded daemon process exists. A PID file
// pointing at a dead process is cleaned up on the way.
func IsRunning() (int, bool) {
	pid := readPID()
	if pid == 0 {
		return 0, false
	}
	if !alive(pid) {
		RemovePID()
		return pid, false
	}
	return pid, true
}

// Background re-execs the current binary detached from the terminal, with
// output redirected to the daemon log file. It refuses to start a second
// daemon next to a live one.
func Background(args []string) (int, error) {
	if pid, running := IsRunning(); running {
		return 0, fmt.Errorf("daemon already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	logPath, err := LogPath()
	if err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), childMark+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	return cmd.Process.Pid, nil
}

// IsDaemonProcess reports whether this process is the backgrounded child.
func IsDaemonProcess() bool {
	return os.Getenv(childMark) == "1"
}

// Stop sends SIGTERM to the daemon and waits for it to exit, escalating to
// SIGKILL after 30 seconds.
func Stop() error {
	pid, running := IsRunning()
	if !running {
		return fmt.Errorf("daemon is not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}
	if waitExit(pid, 30*time.Second) {
		RemovePID()
		return nil
	}
	_ = proc.Signal(syscall.SIGKILL)
	RemovePID()
	return nil
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

// ResyncPayload holds parameters for a windowed resync job.
type ResyncPayload struct {
	Since         string `json:"since,omitempty"` // RFC 3339
	WindowMinutes int    `json:"window_minutes,omitempty"`
}

// ItemsPayload holds parameters for an explicit item-list job.
type ItemsPayload struct {
	ItemIDs   []string `json:"item_ids"`
	DeltaLink string   `json:"delta_link,omitempty"`
}

// JobResponse is returned after submitting a job.
type JobResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
