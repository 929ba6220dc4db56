package finalize

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Workspace is the scratch area for a whole run: a private run-* directory
// created under the configured work directory. Each day gets a freshly
// emptied day directory; the day's log lives beside it so that the day
// directory only holds tool inputs and outputs.
type Workspace struct {
	root string
	keep bool
}

// NewWorkspace creates a fresh run directory under parent. keep retains it
// after Cleanup (debug mode). parent itself is never removed.
func NewWorkspace(parent string, keep bool) (*Workspace, error) {
	if parent == "" {
		return nil, eris.New("finalize: empty workspace root")
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, eris.Wrapf(err, "finalize: create workspace %s", parent)
	}
	root, err := os.MkdirTemp(parent, "run-*")
	if err != nil {
		return nil, eris.Wrapf(err, "finalize: create run directory in %s", parent)
	}
	return &Workspace{root: root, keep: keep}, nil
}

// Root is the run directory.
func (w *Workspace) Root() string { return w.root }

// DayDir is the per-day working directory.
func (w *Workspace) DayDir() string { return filepath.Join(w.root, "day") }

// LogPath is the per-day captured log.
func (w *Workspace) LogPath() string { return filepath.Join(w.root, "day.log") }

// Reset empties the day directory and opens a fresh day log.
func (w *Workspace) Reset() (*os.File, error) {
	if err := os.RemoveAll(w.DayDir()); err != nil {
		return nil, eris.Wrap(err, "finalize: clear day directory")
	}
	if err := os.MkdirAll(w.DayDir(), 0o755); err != nil {
		return nil, eris.Wrap(err, "finalize: create day directory")
	}
	f, err := os.Create(w.LogPath())
	if err != nil {
		return nil, eris.Wrap(err, "finalize: create day log")
	}
	return f, nil
}

// Cleanup removes the run directory unless it is kept for debugging.
func (w *Workspace) Cleanup() error {
	if w.keep {
		zap.L().Info("keeping working directory for debugging", zap.String("path", w.root))
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return eris.Wrapf(err, "finalize: remove workspace %s", w.root)
	}
	return nil
}
