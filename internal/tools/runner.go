// Package tools wraps the external programs the pipeline drives. Each
// program has an option struct that validates itself before turning into an
// argument list, so nothing is assembled by string concatenation.
package tools

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Invocation is a fully resolved external command.
type Invocation struct {
	Tool   string
	Binary string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Binary}, inv.Args...), " ")
}

// Runner executes an invocation and reports its exit code. The error is
// reserved for failures to start or wait on the process; a non-zero exit is
// not an error.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (int, error)
}

// ExecRunner runs invocations with os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run starts the process and waits for it.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (int, error) {
	if inv.Binary == "" {
		return -1, eris.Errorf("tools: %s: empty binary", inv.Tool)
	}
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	zap.L().Debug("tools: exec", zap.String("tool", inv.Tool), zap.String("cmd", inv.String()), zap.String("dir", inv.Dir))

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, eris.Wrapf(err, "tools: run %s", inv.Tool)
}

// Succeeded reports whether a run started and exited zero.
func Succeeded(code int, err error) bool {
	return err == nil && code == 0
}
