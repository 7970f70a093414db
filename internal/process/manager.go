// Package process tracks the background gateway through a PID file in the
// configuration directory.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const PIDFilename = ".endpoint-proxy.pid"

var ErrStartTimeout = errors.New("service startup timeout")

type Manager struct {
	pidFile string
	mu      sync.RWMutex

	// signal is swapped in tests.
	signal func(pid int, sig syscall.Signal) error
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		pidFile: filepath.Join(baseDir, PIDFilename),
		signal:  syscall.Kill,
	}
}

func (m *Manager) PIDFile() string {
	return m.pidFile
}

func (m *Manager) WritePID() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0750); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	return os.WriteFile(m.pidFile, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// ReadPID returns the recorded pid, or 0 when there is no valid PID file.
func (m *Manager) ReadPID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}

	return pid
}

// IsRunning reports whether the recorded process is alive. A stale PID file
// is removed.
func (m *Manager) IsRunning() bool {
	pid := m.ReadPID()
	if pid == 0 {
		return false
	}

	if err := m.signal(pid, 0); err != nil {
		_ = m.CleanupPID()
		return false
	}

	return true
}

// Stop sends SIGTERM to the recorded process and waits up to timeout for it
// to exit.
func (m *Manager) Stop(timeout time.Duration) error {
	pid := m.ReadPID()
	if pid == 0 {
		return nil
	}

	if err := m.signal(pid, syscall.SIGTERM); err != nil {
		_ = m.CleanupPID()
		return fmt.Errorf("send SIGTERM to process %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && m.IsRunning() {
		time.Sleep(100 * time.Millisecond)
	}

	return m.CleanupPID()
}

func (m *Manager) CleanupPID() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}

	return nil
}

func (m *Manager) WaitForService(timeout time.Duration) bool {
	expire := time.Now().Add(timeout)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(expire) {
		if m.IsRunning() {
			return true
		}

		<-ticker.C
	}

	return false
}

// StartBackground re-executes the current binary with args unless the
// service is already running. It reports whether a process was started.
func (m *Manager) StartBackground(args ...string) (bool, error) {
	if m.IsRunning() {
		return false, nil
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start service: %w", err)
	}

	if err := cmd.Process.Release(); err != nil {
		return false, fmt.Errorf("release service process: %w", err)
	}

	if !m.WaitForService(10 * time.Second) {
		return false, ErrStartTimeout
	}

	return true, nil
}
