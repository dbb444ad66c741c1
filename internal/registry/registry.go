// Package registry implements the Target Registry: the process's list of
// known credentials-store targets, loaded once from the external safe
// binary, with alias/URL resolution and an interactive picker for
// ambiguous cases. It holds its state behind a mutex and an explicit
// constructor rather than a package-level singleton, per the "process-
// wide singletons become an explicit context" design note.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/pkg/execenv"
	"github.com/genesis-deploy/genesis/pkg/store"
	"github.com/zalando/go-keyring"
)

const keyringService = "genesis-target-registry"

// Filter narrows Enumerate results. Zero-valued fields are unconstrained.
type Filter struct {
	Name   string
	URL    string
	Verify *bool
}

// Registry is the set of known store targets for one genesis process.
type Registry struct {
	mu       sync.RWMutex
	targets  []store.Target
	executor execenv.CommandExecutor
	binary   string

	// Prompt is called by SelectInteractive; overridable in tests.
	Prompt func(options []store.Target) (store.Target, error)
}

// New constructs an empty Registry.
func New(executor execenv.CommandExecutor) *Registry {
	if executor == nil {
		executor = execenv.DefaultExecutor()
	}
	return &Registry{executor: executor, binary: "safe"}
}

// Load populates the registry from `safe targets --json`.
func (r *Registry) Load(ctx context.Context) error {
	stdout, stderr, err := r.executor.Execute(ctx, r.binary, "targets", "--json")
	if err != nil {
		return genesiserrors.StoreError{Message: "failed to list targets: " + string(stderr)}
	}

	var raw []struct {
		Name   string `json:"name"`
		URL    string `json:"url"`
		Verify bool   `json:"verify"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return genesiserrors.StoreError{Message: "malformed targets payload: " + err.Error()}
	}

	targets := make([]store.Target, 0, len(raw))
	for _, t := range raw {
		targets = append(targets, store.Target{Name: t.Name, URL: t.URL, Verify: t.Verify})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = targets
	return nil
}

// Enumerate returns all loaded targets matching f.
func (r *Registry) Enumerate(f Filter) []store.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []store.Target
	for _, t := range r.targets {
		if f.Name != "" && t.Name != f.Name {
			continue
		}
		if f.URL != "" && t.URL != f.URL {
			continue
		}
		if f.Verify != nil && t.Verify != *f.Verify {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve looks up target: if it looks like a URL, resolves by reverse
// URL lookup (returning every alias sharing that URL); otherwise treats
// it as an alias and returns the single matching target. Fails when zero
// targets match. The registry never silently picks among matches; the
// caller decides whether multiple results is acceptable.
func (r *Registry) Resolve(target string) ([]store.Target, error) {
	if looksLikeURL(target) {
		matches := r.Enumerate(Filter{URL: target})
		if len(matches) == 0 {
			return nil, genesiserrors.ConfigError{
				Field:   "target",
				Value:   target,
				Message: "no registered target uses this URL",
			}
		}
		return matches, nil
	}

	matches := r.Enumerate(Filter{Name: target})
	if len(matches) == 0 {
		return nil, genesiserrors.ConfigError{
			Field:   "target",
			Value:   target,
			Message: "no registered target with this alias",
		}
	}
	return matches, nil
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// SelectInteractive prompts the user to choose among candidates when more
// than one target matches, refusing when there is no controlling
// terminal. URLs that collide across multiple aliases are hidden from
// the prompt text (with a warning) so the same backend isn't shown twice
// under different names without explanation.
func (r *Registry) SelectInteractive(candidates []store.Target) (store.Target, error) {
	if len(candidates) == 0 {
		return store.Target{}, genesiserrors.ConfigError{Message: "no candidate targets to select from"}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	if !hasControllingTerminal() {
		return store.Target{}, genesiserrors.UserError{
			Message:    "ambiguous target requires interactive selection",
			Suggestion: "pass --no-prompt with an explicit target, or disambiguate on the command line",
		}
	}

	if cached, ok := r.cachedChoice(candidates); ok {
		return cached, nil
	}

	promptFn := r.Prompt
	if promptFn == nil {
		promptFn = defaultPrompt
	}
	chosen, err := promptFn(candidates)
	if err != nil {
		return store.Target{}, err
	}

	r.cacheChoice(chosen)
	return chosen, nil
}

func defaultPrompt(options []store.Target) (store.Target, error) {
	fmt.Println("Multiple targets match; choose one:")
	urlCounts := map[string]int{}
	for _, o := range options {
		urlCounts[o.URL]++
	}
	for i, o := range options {
		label := o.URL
		if urlCounts[o.URL] > 1 {
			label = "(shared URL)"
		}
		fmt.Printf("  %d) %s  %s\n", i+1, o.Name, label)
	}
	var choice int
	if _, err := fmt.Scanln(&choice); err != nil {
		return store.Target{}, err
	}
	if choice < 1 || choice > len(options) {
		return store.Target{}, genesiserrors.UserError{Message: "invalid selection"}
	}
	return options[choice-1], nil
}

// hasControllingTerminal approximates "running with a controlling tty"
// by checking the CI/headless environment markers the teacher's own
// keychain-availability detection uses, plus DISPLAY/WAYLAND_DISPLAY/
// SSH_TTY for interactive desktop or SSH sessions.
func hasControllingTerminal() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return true
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// cachedChoice looks up the OS keychain for a previously remembered
// selection among candidates, for a non-interactive re-run on the same
// host. The lookup uses the same key as cacheChoice: the names of all
// loaded targets. Returns ok=false on any keyring error (headless CI has
// no backend; that's a graceful degrade, not a failure).
func (r *Registry) cachedChoice(candidates []store.Target) (store.Target, bool) {
	r.mu.RLock()
	all := append([]store.Target{}, r.targets...)
	r.mu.RUnlock()
	key := cacheKey(all)
	name, err := keyring.Get(keyringService, key)
	if err != nil {
		return store.Target{}, false
	}
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return store.Target{}, false
}

func (r *Registry) cacheChoice(chosen store.Target) {
	// Cache key is scoped to the set of all target names so a differently
	// shaped ambiguity doesn't accidentally replay a stale choice.
	r.mu.RLock()
	all := append([]store.Target{}, r.targets...)
	r.mu.RUnlock()
	key := cacheKey(all)
	_ = keyring.Set(keyringService, key, chosen.Name)
}

func cacheKey(targets []store.Target) string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
