package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/genesis-deploy/genesis/pkg/execenv"
)

// Merger shells out to the YAML graph merger (spruce) to combine an
// ordered file list into one document. It never interprets the
// operators itself — they're opaque to the engine, per §4.7.
type Merger struct {
	Executor execenv.CommandExecutor
	Binary   string
}

// NewMerger returns a Merger invoking "spruce" via executor.
func NewMerger(executor execenv.CommandExecutor) *Merger {
	return &Merger{Executor: executor, Binary: "spruce"}
}

// MergeError wraps the merger's own stderr report. The adaptive retry
// loop extracts the failing operator straight from this text rather
// than guessing at it.
type MergeError struct {
	Stderr string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: %s", e.Stderr)
}

// Merge runs the merger over files in order. skipEval requests
// deferred-evaluation mode (parameter view); without it every operator
// is fully evaluated (manifest view).
func (m *Merger) Merge(ctx context.Context, files []string, skipEval bool) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to merge")
	}
	args := []string{"merge"}
	if skipEval {
		args = append(args, "--skip-eval")
	}
	args = append(args, files...)

	stdout, stderr, err := m.Executor.Execute(ctx, m.Binary, args...)
	if err != nil {
		return nil, &MergeError{Stderr: strings.TrimSpace(string(stderr))}
	}
	return stdout, nil
}

var operatorRe = regexp.MustCompile(`\(\([^()]*\)\)`)

// extractOperator pulls the first "(( ... ))" operator text out of a
// merger error report, verbatim.
func extractOperator(stderr string) (string, bool) {
	m := operatorRe.FindString(stderr)
	return m, m != ""
}

// deferredForm rewrites "(( op args ))" to "(( defer op args ))",
// leaving already-deferred operators untouched.
func deferredForm(op string) string {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(op, "(("), "))"))
	if strings.HasPrefix(inner, "defer ") {
		return op
	}
	return "(( defer " + inner + " ))"
}

// maxAdaptiveAttempts bounds the retry loop per §4.7.
const maxAdaptiveAttempts = 5

// AdaptiveMerge retries a full-evaluation merge, rewriting each
// unresolvable operator reported by the merger to its deferred form and
// retrying, up to maxAdaptiveAttempts times. It never rewrites an
// operator it did not see named in the merger's own error text.
func (m *Merger) AdaptiveMerge(ctx context.Context, files []string) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "genesis-merge-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	working := append([]string(nil), files...)

	var lastErr error
	for attempt := 0; attempt < maxAdaptiveAttempts; attempt++ {
		out, err := m.Merge(ctx, working, false)
		if err == nil {
			return out, nil
		}
		lastErr = err

		mergeErr, ok := err.(*MergeError)
		if !ok {
			return nil, err
		}
		op, found := extractOperator(mergeErr.Stderr)
		if !found {
			return nil, err
		}

		patchedIdx := -1
		var patchedContent []byte
		for i, f := range working {
			data, rerr := os.ReadFile(f)
			if rerr != nil {
				continue
			}
			if bytes.Contains(data, []byte(op)) {
				patchedIdx = i
				patchedContent = bytes.Replace(data, []byte(op), []byte(deferredForm(op)), 1)
				break
			}
		}
		if patchedIdx == -1 {
			return nil, err
		}

		patchedPath := filepath.Join(workDir, fmt.Sprintf("patched-%d-%s", attempt, filepath.Base(working[patchedIdx])))
		if werr := os.WriteFile(patchedPath, patchedContent, 0o600); werr != nil {
			return nil, werr
		}
		working[patchedIdx] = patchedPath
	}

	return nil, fmt.Errorf("adaptive merge did not converge after %d attempts: %w", maxAdaptiveAttempts, lastErr)
}
