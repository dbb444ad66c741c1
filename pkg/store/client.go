// Package store implements the Store Client: a typed wrapper over the
// external `safe` binary that provides atomic read/write of path:key
// pairs in a credentials store, exposes authentication state, and is the
// only sanctioned way genesis touches secret material. It never links a
// cloud secrets-manager SDK directly — every operation shells out
// through pkg/execenv, mirroring the subprocess-wrapping shape of a CLI
// secret provider.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/secure"
	"github.com/genesis-deploy/genesis/pkg/execenv"
)

var urlPattern = regexp.MustCompile(`^https?://[^/\s]+$`)

// Target identifies a single registered credentials-store target.
type Target struct {
	Name   string
	URL    string
	Verify bool
}

// Validate checks the Target invariants from the data model: the URL
// must look like a bare scheme://host[:port], with no path component.
func (t Target) Validate() error {
	if !urlPattern.MatchString(t.URL) {
		return genesiserrors.ConfigError{
			Field:   "url",
			Value:   t.URL,
			Message: "target URL must match ^https?://host(:port)?$",
		}
	}
	return nil
}

// Client is a single authenticated session against a credentials store.
type Client struct {
	target   Target
	executor execenv.CommandExecutor
	binary   string // defaults to "safe"
}

// New constructs a Client for target, defaulting the underlying binary
// to "safe".
func New(target Target, executor execenv.CommandExecutor) *Client {
	if executor == nil {
		executor = execenv.DefaultExecutor()
	}
	return &Client{target: target, executor: executor, binary: "safe"}
}

// Name returns the target's alias, satisfying gctx.StoreClient.
func (c *Client) Name() string { return c.target.Name }

// Target returns the target this client is bound to.
func (c *Client) Target() Target { return c.target }

func (c *Client) targetedArgs(args ...string) []string {
	return append([]string{"-T", c.target.Name}, args...)
}

func (c *Client) run(ctx context.Context, args ...string) (string, string, error) {
	stdout, stderr, err := c.executor.Execute(ctx, c.binary, c.targetedArgs(args...)...)
	return string(stdout), string(stderr), err
}

// Get fetches a full path map, or a single key's value when key is
// non-empty. A missing path returns an empty map rather than an error.
func (c *Client) Get(ctx context.Context, path, key string) (map[string]string, error) {
	args := []string{"get", path}
	out, stderr, err := c.run(ctx, args...)
	if err != nil {
		if isNotFound(stderr) {
			return map[string]string{}, nil
		}
		return nil, genesiserrors.CommandError{Command: "safe get " + path, Message: stderr}
	}

	result, parseErr := parseGetOutput(out)
	if parseErr != nil {
		return nil, genesiserrors.StoreError{
			Target:  c.target.Name,
			Status:  string(StatusOK),
			Message: fmt.Sprintf("unexpected data shape at %s: %v", path, parseErr),
		}
	}
	if key != "" {
		if v, ok := result[key]; ok {
			return map[string]string{key: v}, nil
		}
		return map[string]string{}, nil
	}
	return result, nil
}

// GetSecure is Get for a single key, with the value wrapped in a
// secure.SecureBuffer rather than held in a plain string.
func (c *Client) GetSecure(ctx context.Context, path, key string) (*secure.SecureBuffer, error) {
	values, err := c.Get(ctx, path, key)
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, genesiserrors.StoreError{Target: c.target.Name, Message: fmt.Sprintf("%s:%s not found", path, key)}
	}
	return secure.NewSecureBuffer([]byte(v))
}

// Set writes key=value at path. An empty value means the caller is in
// interactive mode and the subprocess is allowed to consume the
// controlling terminal to prompt for it (§5 concurrency model).
func (c *Client) Set(ctx context.Context, path, key, value string) error {
	args := []string{"set", path}
	if value != "" {
		args = append(args, fmt.Sprintf("%s=%s", key, value))
	} else {
		args = append(args, key)
	}
	_, stderr, err := c.run(ctx, args...)
	if err != nil {
		return genesiserrors.CommandError{Command: "safe set " + path, Message: stderr}
	}
	return nil
}

// Has reports whether path (optionally path:key) exists.
func (c *Client) Has(ctx context.Context, path, key string) (bool, error) {
	target := path
	if key != "" {
		target = path + ":" + key
	}
	_, _, err := c.run(ctx, "exists", target)
	if err == nil {
		return true, nil
	}
	if code, ok := execenv.ExitCode(err); ok && code == 1 {
		return false, nil
	}
	return false, genesiserrors.CommandError{Command: "safe exists " + target}
}

// Paths enumerates leaf paths under each of prefixes. If the subprocess
// returns the prefix itself as the only match, a Has probe disambiguates
// a single leaf from an empty subtree.
func (c *Client) Paths(ctx context.Context, prefixes ...string) ([]string, error) {
	args := append([]string{"paths"}, prefixes...)
	out, stderr, err := c.run(ctx, args...)
	if err != nil {
		return nil, genesiserrors.CommandError{Command: "safe paths", Message: stderr}
	}

	lines := splitNonEmptyLines(out)
	if len(lines) == 1 && len(prefixes) == 1 && lines[0] == prefixes[0] {
		ok, hasErr := c.Has(ctx, prefixes[0], "")
		if hasErr != nil {
			return nil, hasErr
		}
		if !ok {
			return []string{}, nil
		}
	}
	return lines, nil
}

// Export dumps the full tree rooted at each of prefixes as path -> {key:value}.
func (c *Client) Export(ctx context.Context, prefixes ...string) (map[string]map[string]string, error) {
	args := append([]string{"export"}, prefixes...)
	out, stderr, err := c.run(ctx, args...)
	if err != nil {
		return nil, genesiserrors.CommandError{Command: "safe export", Message: stderr}
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, genesiserrors.StoreError{Target: c.target.Name, Message: "malformed export payload: " + err.Error()}
	}

	result := make(map[string]map[string]string, len(raw))
	for path, kv := range raw {
		flat := make(map[string]string, len(kv))
		for k, v := range kv {
			flat[k] = fmt.Sprintf("%v", v)
		}
		result[path] = flat
	}
	return result, nil
}

// Rm removes path (optionally path:key).
func (c *Client) Rm(ctx context.Context, path, key string) error {
	target := path
	if key != "" {
		target = path + ":" + key
	}
	_, stderr, err := c.run(ctx, "rm", "-f", target)
	if err != nil {
		return genesiserrors.CommandError{Command: "safe rm " + target, Message: stderr}
	}
	return nil
}

// Query issues a raw invocation, always overriding target selection and
// clearing verbose/debug env vars that would disrupt output parsing.
func (c *Client) Query(ctx context.Context, args ...string) (string, string, error) {
	env := execenv.WithEnv(c.executor, cleanEnv())
	stdout, stderr, err := env.Execute(ctx, c.binary, c.targetedArgs(args...)...)
	return string(stdout), string(stderr), err
}

// StatusOf derives the store's reachability/auth state. Derivation
// order: TCP probe of host:port, token presence, subprocess `status`
// call (exit code 2 means sealed), then a handshake-path probe.
func (c *Client) StatusOf(ctx context.Context, hasToken bool) Status {
	if !c.tcpReachable() {
		return StatusUnreachable
	}
	if !hasToken {
		return StatusUnauthenticated
	}

	_, _, err := c.run(ctx, "status")
	if err != nil {
		if code, ok := execenv.ExitCode(err); ok && code == 2 {
			return StatusSealed
		}
		return StatusUnauthenticated
	}

	ok, _ := c.Has(ctx, "secret/handshake", "")
	if !ok {
		return StatusUninitialized
	}
	return StatusOK
}

func (c *Client) tcpReachable() bool {
	u, err := url.Parse(c.target.URL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func isNotFound(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "not found") || strings.Contains(strings.ToLower(stderr), "no such")
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// cleanEnv copies the process environment, drops any SAFE_TARGET so -T
// is the only target selector in effect, and strips SAFE_*VERBOSE* /
// SAFE_*DEBUG* keys that would otherwise interleave into stdout and
// break Query's output parsing. Everything else -- HOME, PATH, auth
// tokens -- passes through untouched.
func cleanEnv() []string {
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		upper := strings.ToUpper(key)
		if key == "SAFE_TARGET" {
			continue
		}
		if strings.HasPrefix(upper, "SAFE_") && (strings.Contains(upper, "VERBOSE") || strings.Contains(upper, "DEBUG")) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// parseGetOutput accepts either a flat "key: value" text block (the
// default safe get rendering) or a JSON object, returning a flat map.
func parseGetOutput(out string) (map[string]string, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return map[string]string{}, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
			return nil, err
		}
		flat := make(map[string]string, len(m))
		for k, v := range m {
			flat[k] = fmt.Sprintf("%v", v)
		}
		return flat, nil
	}

	flat := map[string]string{}
	for _, line := range strings.Split(trimmed, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+1:])
		flat[k] = v
	}
	return flat, nil
}
