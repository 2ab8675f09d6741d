// Package external runs the numerical tools and converters that stay outside this module.
//
// Every invocation has three outcomes: success, failure (ErrInvocationFailed) and an
// explicit skip, signalled by the tool exiting with SkipExitCode and reported as
// pipeline.ErrSkip.
package external

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// SkipExitCode is the exit status tools use to say there is nothing to do.
const SkipExitCode = 3

var ErrInvocationFailed = errors.New("external invocation failed")

type Kind string

const (
	KindSPM     Kind = "spm"
	KindCommand Kind = "command"
)

// Job is one invocation of an external function.
type Job struct {
	Kind     Kind
	Function string
	// Args are passed in order.
	Args []string
	// Paths are added to the tool search path before the call.
	Paths []string
	Env   map[string]string
	Dir   string
}

// Result is what the tool printed and how it exited.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// Runner invokes external jobs.
type Runner interface {
	Run(ctx context.Context, job Job) (Result, error)
}

// FuncRunner adapts a function to Runner.
type FuncRunner func(ctx context.Context, job Job) (Result, error)

func (f FuncRunner) Run(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}

// CommandRunner runs Job.Function as an executable.
type CommandRunner struct {
	// SkipExitCode defaults to the package SkipExitCode when zero.
	SkipExitCode int
}

func (r CommandRunner) Run(ctx context.Context, job Job) (Result, error) {
	return run(ctx, job, job.Function, job.Args, r.SkipExitCode)
}

// MatlabRunner calls SPM functions through `matlab -batch`.
type MatlabRunner struct {
	// Binary defaults to "matlab".
	Binary       string
	SkipExitCode int
}

func (r MatlabRunner) Run(ctx context.Context, job Job) (Result, error) {
	binary := r.Binary
	if binary == "" {
		binary = "matlab"
	}

	args := []string{"-nodisplay", "-nosplash", "-batch", MatlabStatement(job)}

	return run(ctx, job, binary, args, r.SkipExitCode)
}

// MatlabStatement returns the statement evaluated by matlab for job: one addpath per
// search path followed by the function call with every argument quoted.
func MatlabStatement(job Job) string {
	var sb strings.Builder
	for _, p := range job.Paths {
		sb.WriteString("addpath(")
		sb.WriteString(matlabQuote(p))
		sb.WriteString("); ")
	}

	quoted := make([]string, 0, len(job.Args))
	for _, a := range job.Args {
		quoted = append(quoted, matlabQuote(a))
	}
	sb.WriteString(job.Function)
	sb.WriteString("(")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(")")

	return sb.String()
}

func matlabQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func run(ctx context.Context, job Job, name string, args []string, skipCode int) (Result, error) {
	if skipCode == 0 {
		skipCode = SkipExitCode
	}

	logger := ctxlog.FromContext(ctx).With("function", job.Function, "kind", string(job.Kind))
	logger.Debug("running external job", "command", name, "args", args, "dir", job.Dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = job.Dir
	cmd.Env = os.Environ()
	for k, v := range job.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var outb, errb bytes.Buffer
	cmd.Stdout = &outb
	cmd.Stderr = &errb

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:  outb.String(),
		Stderr:  errb.String(),
		Elapsed: time.Since(start),
	}

	if err == nil {
		logger.Debug("external job done", "elapsed", res.Elapsed)
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, errors.Wrapf(ErrInvocationFailed, "%s: %v", job.Function, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		res.ExitCode = -1
		return res, errors.Wrapf(ErrInvocationFailed, "%s: %v", job.Function, err)
	}

	res.ExitCode = exitErr.ExitCode()
	if res.ExitCode == skipCode {
		logger.Info("external job skipped", "stderr", tail(res.Stderr))
		return res, pipeline.Skip(job.Function + ": " + tail(res.Stderr))
	}

	return res, errors.Wrapf(ErrInvocationFailed, "%s exited with %d: %s", job.Function, res.ExitCode, tail(res.Stderr))
}

const tailSize = 512

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= tailSize {
		return s
	}

	return "..." + s[len(s)-tailSize:]
}

var (
	_ Runner = FuncRunner(nil)
	_ Runner = CommandRunner{}
	_ Runner = MatlabRunner{}
)
