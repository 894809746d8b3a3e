// Package executor runs external programs (git, npm, eas) with output
// capture, console streaming, retries and per-command timeouts.
package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// Result holds the output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Output returns the trimmed stdout, falling back to combined output.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	if r.Stdout != "" {
		return strings.TrimSpace(r.Stdout)
	}
	return strings.TrimSpace(r.Combined)
}

// Runner runs a bound program with arguments. *Program implements it; tests
// substitute fakes.
type Runner interface {
	Run(ctx context.Context, args []string, opts ...Option) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	CaptureStdout     bool
	CaptureStderr     bool
	CaptureCombined   bool
	RedirectToConsole bool

	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool

	// Timeout bounds a single attempt. Zero means no limit beyond ctx.
	Timeout time.Duration

	WorkingDir string

	// Env is appended to the current process environment.
	Env map[string]string

	Stdin        io.Reader
	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// Program is an executor bound to a single binary.
type Program struct {
	name string
	base []Option
}

// NewProgram creates a Program for the named binary. The base options apply
// to every invocation before per-call options.
func NewProgram(name string, base ...Option) *Program {
	return &Program{name: name, base: base}
}

// Name returns the program's binary name.
func (p *Program) Name() string {
	return p.name
}

// Available reports whether the program can be found on PATH.
func (p *Program) Available() bool {
	_, err := exec.LookPath(p.name)
	return err == nil
}

// Run executes the program with args.
func (p *Program) Run(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	all := make([]Option, 0, len(p.base)+len(opts))
	all = append(all, p.base...)
	all = append(all, opts...)
	return Run(ctx, p.name, args, all...)
}

// Run executes program with args, retrying according to the options.
func Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	attempts := options.MaxRetries + 1
	var (
		result *Result
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = runOnce(ctx, program, args, options)
		if err == nil || attempt == attempts {
			break
		}
		if options.RetryOn != nil && !options.RetryOn(err) {
			break
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}
	return result, err
}

func runOnce(ctx context.Context, program string, args []string, options *Options) (*Result, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if options.Stdin != nil {
		cmd.Stdin = options.Stdin
	}

	var stdout, stderr, combined bytes.Buffer
	cmd.Stdout = writers(options.CaptureStdout, &stdout, options, &combined, os.Stdout, options.StdoutWriter)
	cmd.Stderr = writers(options.CaptureStderr, &stderr, options, &combined, os.Stderr, options.StderrWriter)

	start := time.Now()
	runErr := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		Duration: time.Since(start),
		Err:      runErr,
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return result, nil
	case stderrors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	detail := map[string]any{
		"program":   program,
		"exit_code": result.ExitCode,
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, errors.WrapWithContext(runErr, errors.CodeTimeout,
			fmt.Sprintf("%s timed out after %s", program, options.Timeout), detail)
	}

	msg := fmt.Sprintf("%s %s failed", program, strings.Join(args, " "))
	if tail := lastLine(result.Stderr); tail != "" {
		msg += ": " + tail
	}
	return result, errors.WrapWithContext(runErr, errors.CodeExecutionFailed, msg, detail)
}

func writers(capture bool, own *bytes.Buffer, options *Options, combined *bytes.Buffer, console, custom io.Writer) io.Writer {
	var ws []io.Writer
	switch {
	case options.CaptureCombined:
		ws = append(ws, combined)
	case capture:
		ws = append(ws, own)
	}
	if options.RedirectToConsole {
		ws = append(ws, console)
	}
	if custom != nil {
		ws = append(ws, custom)
	}
	if len(ws) == 0 {
		return nil
	}
	return io.MultiWriter(ws...)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithConsoleRedirect enables/disables console output.
func WithConsoleRedirect(redirect bool) Option {
	return func(o *Options) {
		o.RedirectToConsole = redirect
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStdin feeds r to the command.
func WithStdin(r io.Reader) Option {
	return func(o *Options) {
		o.Stdin = r
	}
}

// WithStdoutWriter sets a custom stdout writer.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter sets a custom stderr writer.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// CaptureAll captures output and streams it to the console.
func CaptureAll() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = true
	}
}

// SilentMode captures output without console redirect.
func SilentMode() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = false
	}
}
