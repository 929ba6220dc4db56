// Package guard keeps two pipeline runs from sharing a working directory.
package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Acquire when a live process holds the lock.
var ErrLocked = errors.New("guard: another run is in progress")

// Lock is a held PID lock file.
type Lock struct {
	path string
	pid  int
}

// Alive reports whether a process with the given id exists. Signal 0 checks
// existence and permissions without delivering anything.
var Alive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// StaleGrace is how long an unreadable lock file is honoured before it is
// treated as abandoned.
var StaleGrace = time.Minute

// Acquire claims path with a lock file recording the current pid. The pid is
// written to a temporary file first and hard-linked into place, so the lock
// never exists without its pid. A lock whose recorded process no longer
// exists is stale and is taken over.
func Acquire(path string) (*Lock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "guard: create lock directory")
	}
	pid := os.Getpid()

	tmp, err := writePIDFile(dir, pid)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp) //nolint:errcheck

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmp, path)
		if err == nil {
			zap.L().Debug("guard: lock acquired", zap.String("path", path), zap.Int("pid", pid))
			return &Lock{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, eris.Wrapf(err, "guard: create %s", path)
		}

		holder, rerr := readPID(path)
		switch {
		case errors.Is(rerr, os.ErrNotExist):
			continue
		case rerr != nil:
			if !expired(path) {
				return nil, eris.Wrapf(ErrLocked, "guard: %s is unreadable and recent: %v", path, rerr)
			}
		case holder == pid || Alive(holder):
			return nil, eris.Wrapf(ErrLocked, "guard: %s held by pid %d", path, holder)
		}
		zap.L().Warn("guard: removing stale lock", zap.String("path", path), zap.Int("recorded_pid", holder))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "guard: remove stale %s", path)
		}
	}
	return nil, eris.Wrapf(ErrLocked, "guard: %s contended", path)
}

func writePIDFile(dir string, pid int) (string, error) {
	f, err := os.CreateTemp(dir, ".lock-*")
	if err != nil {
		return "", eris.Wrap(err, "guard: create pid file")
	}
	_, werr := fmt.Fprintf(f, "%d\n", pid)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(f.Name()) //nolint:errcheck
		return "", eris.Wrapf(errors.Join(werr, cerr), "guard: write %s", f.Name())
	}
	return f.Name(), nil
}

// expired reports whether path was last modified more than StaleGrace ago.
func expired(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleGrace
}

// Path is the lock file location.
func (l *Lock) Path() string { return l.path }

// Release deletes the lock file if it still records this process. It is
// safe to call more than once and on a nil lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	holder, err := readPID(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && holder != l.pid {
		zap.L().Warn("guard: lock now owned by another process, leaving it", zap.Int("pid", holder))
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "guard: release %s", l.path)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, eris.Wrapf(err, "guard: parse pid in %s", path)
	}
	return pid, nil
}
