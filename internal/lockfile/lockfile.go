// Package lockfile enforces a single running daemon instance.
//
// A PID-stamped file under the application data directory is the lock.
// There is no renewal or TTL; the lock lives until the holder releases
// it or dies. A lock whose PID no longer maps to a live process is
// stale and is broken with a warning.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// ErrHeld is returned when another live process holds the lock.
var ErrHeld = errors.New("lock is held by another process")

// Lock is an acquired lock file. Release removes it.
type Lock struct {
	path string
	pid  int
	log  zerolog.Logger
}

// Acquire takes the lock at path, creating parent directories as
// needed. A stale lock (dead or unparseable PID) is broken. A lock
// held by a live process returns ErrHeld.
func Acquire(path string, log zerolog.Logger) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	pid := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", pid)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lock file: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, pid: pid, log: log}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		holder, ok := readPID(path)
		if ok && pidAlive(holder) {
			return nil, fmt.Errorf("%w (pid %d)", ErrHeld, holder)
		}
		log.Warn().Str("path", path).Int("pid", holder).
			Msg("breaking stale lock file")
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock file: %w", err)
		}
	}
	return nil, fmt.Errorf("%w (lost the creation race twice)", ErrHeld)
}

// Release removes the lock file. A lock file rewritten by someone else
// is left alone.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	holder, ok := readPID(l.path)
	if ok && holder != l.pid {
		l.log.Warn().Str("path", l.path).Int("pid", holder).
			Msg("lock file no longer ours; leaving it in place")
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// pidAlive reports whether pid maps to a live process. Signal 0 probes
// without delivering; EPERM still means the process exists.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
