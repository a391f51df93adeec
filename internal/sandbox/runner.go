// Package sandbox compiles and runs submitted programs against a single
// stdin/stdout test case.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/codequiz/internal/metrics"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultCompileTimeout = 30 * time.Second

	// maxOutput caps captured stdout and stderr per stream.
	maxOutput = 1 << 20
)

// Outcome classifies a run.
type Outcome string

const (
	OutcomePass         Outcome = "pass"
	OutcomeWrongOutput  Outcome = "wrong_output"
	OutcomeCompileError Outcome = "compile_error"
	OutcomeRuntimeError Outcome = "runtime_error"
	OutcomeTimeout      Outcome = "timeout"
)

// Result is one execution of a program on one input.
type Result struct {
	Outcome  Outcome
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Passed reports whether the normalized output matched.
func (r *Result) Passed() bool {
	return r != nil && r.Outcome == OutcomePass
}

// Runner executes programs in throwaway directories.
type Runner struct {
	timeout        time.Duration
	compileTimeout time.Duration
	baseDir        string
	logger         *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds the run step.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithCompileTimeout bounds the build step.
func WithCompileTimeout(d time.Duration) Option {
	return func(r *Runner) { r.compileTimeout = d }
}

// WithBaseDir sets the parent of the per-run directories. Empty means
// os.TempDir().
func WithBaseDir(dir string) Option {
	return func(r *Runner) { r.baseDir = dir }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		timeout:        DefaultTimeout,
		compileTimeout: DefaultCompileTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCode reports whether code, fed input on stdin, prints expected.
// Compile errors, crashes and timeouts are a false result, not an error;
// errors are reserved for unsupported languages and host failures.
func (r *Runner) RunCode(ctx context.Context, code, input, expected, language string) (bool, error) {
	res, err := r.Run(ctx, code, input, expected, language)
	if err != nil {
		return false, err
	}
	return res.Passed(), nil
}

// Run executes code once and classifies the outcome.
func (r *Runner) Run(ctx context.Context, code, input, expected, language string) (*Result, error) {
	tc, err := Lookup(language)
	if err != nil {
		return nil, err
	}

	dir, err := r.workDir()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove sandbox dir", "dir", dir, "error", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, tc.File), []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	start := time.Now()
	res := r.execute(ctx, tc, dir, input, expected)
	res.Duration = time.Since(start)

	metrics.SandboxRuns.WithLabelValues(tc.Name, string(res.Outcome)).Inc()
	metrics.SandboxDuration.WithLabelValues(tc.Name).Observe(res.Duration.Seconds())
	return res, ctx.Err()
}

func (r *Runner) workDir() (string, error) {
	base := r.baseDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "codequiz-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create sandbox dir: %w", err)
	}
	return dir, nil
}

func (r *Runner) execute(ctx context.Context, tc Toolchain, dir, input, expected string) *Result {
	if tc.Compiled() {
		out, err := r.command(ctx, r.compileTimeout, dir, expand(tc.Compile, dir), "")
		if err != nil {
			res := &Result{Outcome: OutcomeCompileError, Stdout: out.stdout, Stderr: out.stderr, ExitCode: out.exitCode}
			if out.timedOut {
				res.Outcome = OutcomeTimeout
			}
			return res
		}
	}

	out, err := r.command(ctx, r.timeout, dir, expand(tc.Run, dir), input)
	res := &Result{Stdout: out.stdout, Stderr: out.stderr, ExitCode: out.exitCode}
	switch {
	case out.timedOut:
		res.Outcome = OutcomeTimeout
	case err != nil && out.exitCode < 0:
		// The binary could not be started at all.
		res.Outcome = OutcomeRuntimeError
		res.Stderr = err.Error()
	case Normalize(out.stdout) == Normalize(expected):
		// Output is what counts; a non-zero exit with the right output passes.
		res.Outcome = OutcomePass
	case err != nil:
		res.Outcome = OutcomeRuntimeError
	default:
		res.Outcome = OutcomeWrongOutput
	}
	return res
}

type output struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

func (r *Runner) command(ctx context.Context, timeout time.Duration, dir string, argv []string, stdin string) (output, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr limitedBuffer
	stdout.max, stderr.max = maxOutput, maxOutput

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	configureProcess(cmd)

	err := cmd.Run()
	out := output{stdout: stdout.String(), stderr: stderr.String(), exitCode: -1}
	if cmd.ProcessState != nil {
		out.exitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.timedOut = true
	}
	return out, err
}

// expand resolves the {bin} placeholder.
func expand(argv []string, dir string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, "{bin}", filepath.Join(dir, "main"))
	}
	return out
}

// limitedBuffer keeps the first max bytes and silently drops the rest.
type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
