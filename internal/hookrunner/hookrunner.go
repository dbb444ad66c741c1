// Package hookrunner invokes the three forms of "run something external"
// genesis needs — a kit hook, a reaction script, or a reaction addon —
// through one shape: resolve the command, build the documented
// environment, run it, and interpret the result. Spec design note 9
// calls these a single capability with variants; Variant distinguishes
// them here since each needs a slightly different argv.
package hookrunner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/genesis-deploy/genesis/pkg/execenv"
)

// Variant is the kind of external program being invoked.
type Variant int

const (
	// KitHook is a script supplied by the kit (check, pre-deploy, post-deploy).
	KitHook Variant = iota
	// ReactionScript is a path to a script named in genesis.reactions.*.
	ReactionScript
	// ReactionAddon is a named addon resolved against a search path.
	ReactionAddon
)

// Invocation describes a single hook/reaction run.
type Invocation struct {
	Variant Variant
	Path    string   // script path, or addon name when Variant == ReactionAddon
	Args    []string
	Env     map[string]string // merged over os.Environ(); Secret values are masked when echoed
}

// Result is what came back from running an Invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// Runner executes Invocations through a CommandExecutor.
type Runner struct {
	Executor execenv.CommandExecutor
	// AddonPath is searched, in order, for ReactionAddon invocations.
	AddonPath []string
}

// New builds a Runner backed by executor.
func New(executor execenv.CommandExecutor) *Runner {
	return &Runner{Executor: executor}
}

// Run resolves inv's command, builds its environment, and executes it.
func (r *Runner) Run(ctx context.Context, inv Invocation) Result {
	cmd, args, err := r.resolve(inv)
	if err != nil {
		return Result{Err: err}
	}

	env := buildEnvironment(inv.Env)
	withEnv := execenv.WithEnv(r.Executor, env)

	stdout, stderr, err := withEnv.Execute(ctx, cmd, args...)
	res := Result{Stdout: stdout, Stderr: stderr, Err: err}
	if ec, ok := execenv.ExitCode(err); ok {
		res.ExitCode = ec
	}
	return res
}

func (r *Runner) resolve(inv Invocation) (string, []string, error) {
	switch inv.Variant {
	case KitHook, ReactionScript:
		if inv.Path == "" {
			return "", nil, fmt.Errorf("hookrunner: empty script path")
		}
		return inv.Path, inv.Args, nil
	case ReactionAddon:
		for _, dir := range r.AddonPath {
			candidate := dir + "/" + inv.Path
			if _, err := os.Stat(candidate); err == nil {
				return candidate, inv.Args, nil
			}
		}
		return "", nil, fmt.Errorf("hookrunner: addon %q not found on path", inv.Path)
	default:
		return "", nil, fmt.Errorf("hookrunner: unknown variant %d", inv.Variant)
	}
}

// buildEnvironment merges extra over the current process environment,
// returning a sorted "KEY=VALUE" slice suitable for exec.Cmd.Env. A key
// mapped to the empty string in extra is deleted from the merged set
// rather than passed through as KEY= — the only way a caller can
// actively clear a variable the process itself already has set, as
// opposed to simply not mentioning it.
func buildEnvironment(extra map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range extra {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// maskValue redacts a value destined for a printed/log representation of
// the environment, never for the environment actually passed to exec.Cmd.
func maskValue(key, value string) string {
	upper := strings.ToUpper(key)
	for _, marker := range []string{"SECRET", "PASSWORD", "TOKEN", "KEY"} {
		if strings.Contains(upper, marker) {
			return "[REDACTED]"
		}
	}
	return value
}

// PrintEnvironment renders env (as produced by buildEnvironment) with
// sensitive-looking values masked, for debug logging of a hook invocation.
func PrintEnvironment(env []string) string {
	var buf bytes.Buffer
	for _, kv := range env {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		key, val := kv[:i], kv[i+1:]
		fmt.Fprintf(&buf, "%s=%s\n", key, maskValue(key, val))
	}
	return buf.String()
}
