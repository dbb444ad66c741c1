// Package execenv provides the subprocess-execution seam every external
// binary genesis shells out to — the credentials store CLI, the BOSH
// driver, stemcell/OS probes and kit/reaction hook scripts — goes through
// a CommandExecutor so it can be faked in tests without a real binary on
// PATH.
package execenv

import (
	"bytes"
	"context"
	"os/exec"
)

// EnvExecutor is implemented by a CommandExecutor that also supports
// running with an explicit environment, the form hook and reaction
// invocations need (§6 hook environment contract).
type EnvExecutor interface {
	CommandExecutor
	ExecuteEnv(ctx context.Context, env []string, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// CommandExecutor runs an external command and captures its streams.
//
// Implementations must fully drain both stdout and stderr before
// returning, and must never retain a reference to either stream past
// the call — the concurrency model (§5) requires that no subprocess
// keep stdin/stdout open after the call that spawned it returns.
type CommandExecutor interface {
	// Execute runs name with args under ctx and returns its captured
	// stdout, stderr, and any error (including a non-zero exit,
	// surfaced as *exec.ExitError).
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor shells out using os/exec. This is the only
// production implementation; every other CommandExecutor in the module
// exists for tests.
type RealCommandExecutor struct{}

// Execute implements CommandExecutor.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExecuteEnv implements EnvExecutor.
func (r *RealCommandExecutor) ExecuteEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the production CommandExecutor.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// envExecutorAdapter lets any plain CommandExecutor be used where an
// EnvExecutor is expected, by ignoring the environment override. Only
// RealCommandExecutor actually honors it; test fakes normally don't
// care about the process environment.
type envExecutorAdapter struct {
	CommandExecutor
}

func (a envExecutorAdapter) ExecuteEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	return a.Execute(ctx, name, args...)
}

// WithEnv returns an EnvExecutor backed by executor whose Execute runs
// with env. If executor does not implement EnvExecutor, env is ignored.
func WithEnv(executor CommandExecutor, env []string) EnvExecutor {
	if ee, ok := executor.(EnvExecutor); ok {
		return envBound{ee, env}
	}
	return envBound{envExecutorAdapter{executor}, env}
}

// envBound pins a fixed environment so callers can keep using the plain
// CommandExecutor.Execute signature.
type envBound struct {
	inner EnvExecutor
	env   []string
}

func (b envBound) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return b.inner.ExecuteEnv(ctx, b.env, name, args...)
}

func (b envBound) ExecuteEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	return b.inner.ExecuteEnv(ctx, env, name, args...)
}

// ExitCode extracts the process exit code from an error returned by
// Execute, if it carries one (any error with an ExitCode() int method,
// *exec.ExitError included).
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if exitErr, ok := err.(interface{ ExitCode() int }); ok {
		return exitErr.ExitCode(), true
	}
	return 0, false
}
