// Package pidfile keeps one mirror process per replica by recording the
// owning process ID in a file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/cespare/xxhash/v2"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/logging"
)

// ErrAlreadyRunning is returned when a live process already owns the PID
// file.
var ErrAlreadyRunning = errors.New("mirror already running for this replica")

// DefaultPath returns the PID file path for replica under
// $XDG_DATA_HOME/mirrorsync. The file name is derived from the absolute
// replica path, so each replica gets its own lock.
func DefaultPath(replica string) string {
	abs, err := filepath.Abs(replica)
	if err != nil {
		abs = replica
	}
	name := fmt.Sprintf("%016x.pid", xxhash.Sum64String(filepath.Clean(abs)))
	return filepath.Join(xdg.DataHome, "mirrorsync", name)
}

// Write writes the current process ID to path, creating parent
// directories as needed.
func Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Read reads a process ID from path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// Remove removes the PID file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsRunning reports whether the process recorded in path is alive.
func IsRunning(path string) bool {
	pid, err := Read(path)
	if err != nil {
		return false
	}
	return processRunning(pid)
}

// Acquire claims path for the current process. A file left behind by a
// dead process is replaced. ErrAlreadyRunning is returned if another live
// process holds it.
func Acquire(path string) error {
	pid, err := Read(path)
	if err == nil && pid != os.Getpid() {
		if processRunning(pid) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		logging.Get("pidfile").Warn("removing stale pid file", "path", path, "stale_pid", pid)
	}

	if err := Write(path); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
