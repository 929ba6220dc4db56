// Package toolstest provides a recording tools.Runner for tests.
package toolstest

import (
	"context"
	"sync"

	"github.com/sells-group/gnssproc/internal/tools"
)

// Handler simulates one external program.
type Handler func(inv tools.Invocation) (int, error)

// Runner records every invocation and dispatches to per-tool handlers.
// Tools without a handler exit zero and produce no output.
type Runner struct {
	mu       sync.Mutex
	calls    []tools.Invocation
	handlers map[string]Handler
}

// New creates an empty Runner.
func New() *Runner {
	return &Runner{handlers: make(map[string]Handler)}
}

// On registers the handler for a tool name and returns the runner.
func (r *Runner) On(tool string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tool] = h
	return r
}

// Run implements tools.Runner.
func (r *Runner) Run(_ context.Context, inv tools.Invocation) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	h := r.handlers[inv.Tool]
	r.mu.Unlock()
	if h == nil {
		return 0, nil
	}
	return h(inv)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []tools.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tools.Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the recorded invocations of one tool.
func (r *Runner) CallsFor(tool string) []tools.Invocation {
	var out []tools.Invocation
	for _, c := range r.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times tool ran.
func (r *Runner) Count(tool string) int {
	return len(r.CallsFor(tool))
}

// Tools returns the tool names in call order.
func (r *Runner) Tools() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Tool
	}
	return out
}
