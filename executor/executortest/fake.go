// Package executortest provides a scripted Runner for tests.
package executortest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/input-output-hk/catalyst-forge-release/executor"
)

// Call records a single invocation.
type Call struct {
	Args    []string
	Options executor.Options
}

// Joined returns the arguments joined by spaces.
func (c Call) Joined() string {
	return strings.Join(c.Args, " ")
}

// Response is the scripted answer for a command prefix.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Runner is a fake executor.Runner. Responses are matched by the longest
// registered argument prefix; unmatched calls succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []Call

	// Hook, when set, is invoked for every call before the scripted response.
	Hook func(args []string, opts executor.Options) (*executor.Result, bool, error)
}

// New creates an empty fake runner.
func New() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On scripts responses for calls whose args start with prefix. Multiple
// responses are returned in order; the last one repeats.
func (r *Runner) On(prefix string, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = append(r.responses[prefix], responses...)
	return r
}

// Calls returns a copy of all recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Called reports whether a call with the given prefix was made.
func (r *Runner) Called(prefix string) bool {
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.Joined(), prefix) {
			return true
		}
	}
	return false
}

// Run implements executor.Runner.
func (r *Runner) Run(_ context.Context, args []string, opts ...executor.Option) (*executor.Result, error) {
	options := executor.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Args: append([]string(nil), args...), Options: *options})
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		if res, ok, err := hook(args, *options); ok {
			return res, err
		}
	}

	resp, ok := r.next(strings.Join(args, " "))
	if !ok {
		return &executor.Result{}, nil
	}

	result := &executor.Result{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		Combined: resp.Stdout + resp.Stderr,
		ExitCode: resp.ExitCode,
		Err:      resp.Err,
	}
	if resp.Err == nil && resp.ExitCode != 0 {
		resp.Err = fmt.Errorf("exit status %d: %s", resp.ExitCode, strings.TrimSpace(resp.Stderr))
		result.Err = resp.Err
	}
	return result, resp.Err
}

func (r *Runner) next(joined string) (Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := ""
	found := false
	for prefix := range r.responses {
		if strings.HasPrefix(joined, prefix) && (!found || len(prefix) > len(best)) {
			best = prefix
			found = true
		}
	}
	if !found {
		return Response{}, false
	}

	queue := r.responses[best]
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[best] = queue[1:]
	}
	return resp, true
}
