// Package exodus implements Exodus Record publication (§3, §4.8 step 7):
// flattening the `exodus` subtree of a deployed manifest to a single
// path:key map in the credentials store, with an added manifest SHA-1
// for drift detection on the next deploy.
package exodus

import (
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
)

// Store is the subset of pkg/store.Client the publisher needs: a raw
// Query for the atomic remove-then-set invocation, plus Export for
// drift comparison against a prior record.
type Store interface {
	Query(ctx context.Context, args ...string) (string, string, error)
	Export(ctx context.Context, prefixes ...string) (map[string]map[string]string, error)
}

// Publisher writes Exodus records for a credentials store target.
type Publisher struct {
	Store Store
	Mount string // e.g. "secret/exodus"
}

// New builds a Publisher rooted at mount.
func New(store Store, mount string) *Publisher {
	return &Publisher{Store: store, Mount: strings.TrimSuffix(mount, "/")}
}

// Path returns the store path an (env,deployType) record is published
// under: <mount>/<env>/<type>.
func (p *Publisher) Path(env, deployType string) string {
	return fmt.Sprintf("%s/%s/%s", p.Mount, env, deployType)
}

// Flatten walks an arbitrary YAML/JSON-decoded tree rooted at the
// manifest's `exodus` key and flattens it to dotted-path -> string
// value pairs, the shape the Exodus Record's data model calls for.
func Flatten(tree interface{}) map[string]string {
	out := map[string]string{}
	flattenInto(out, "", tree)
	return out
}

func flattenInto(out map[string]string, prefix string, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			flattenInto(out, joinDotted(prefix, k), val)
		}
	case map[interface{}]interface{}:
		for k, val := range t {
			flattenInto(out, joinDotted(prefix, fmt.Sprintf("%v", k)), val)
		}
	case []interface{}:
		for i, val := range t {
			flattenInto(out, fmt.Sprintf("%s.%d", prefix, i), val)
		}
	case nil:
		return
	default:
		out[prefix] = fmt.Sprintf("%v", t)
	}
}

func joinDotted(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ManifestSHA1 hashes the exact bytes written to
// .genesis/manifests/<env>.yml, matching testable property 6
// ("manifest_sha1 equal to the SHA-1 of the redacted manifest").
func ManifestSHA1(manifestBytes []byte) string {
	sum := sha1.Sum(manifestBytes) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Publish flattens manifest's exodus subtree, adds manifest_sha1, and
// writes the record atomically per key: the prior record at the target
// path is removed, then every key is set in one invocation (§5:
// "atomic per key ... remove the prior record and then set all keys in
// one invocation").
func (p *Publisher) Publish(ctx context.Context, env, deployType string, exodusTree interface{}, manifestBytes []byte) error {
	path := p.Path(env, deployType)

	flat := Flatten(exodusTree)
	flat["manifest_sha1"] = ManifestSHA1(manifestBytes)

	if _, _, err := p.Store.Query(ctx, "rm", "-rf", path); err != nil {
		// A missing prior record is not an error; any other failure is.
		if !strings.Contains(strings.ToLower(err.Error()), "not found") {
			return genesiserrors.StoreError{Message: fmt.Sprintf("failed clearing prior exodus record at %s: %v", path, err)}
		}
	}

	args := append([]string{"set", path}, kvPairs(flat)...)
	if _, stderr, err := p.Store.Query(ctx, args...); err != nil {
		return genesiserrors.CommandError{Command: "safe set " + path, Message: stderr}
	}
	return nil
}

// kvPairs renders flat as sorted "key=value" argv tokens so the
// generated command is deterministic (and its tests reproducible).
func kvPairs(flat map[string]string) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, flat[k]))
	}
	return out
}

// DriftCheck compares a newly-rendered manifest's hash against the
// previously published record's manifest_sha1, per testable property 1
// ("drift detection"): a mismatch means the deployed state has moved
// since the last recorded Exodus publication.
func (p *Publisher) DriftCheck(ctx context.Context, env, deployType string, manifestBytes []byte) (drifted bool, priorSHA1 string, err error) {
	export, err := p.Store.Export(ctx, p.Path(env, deployType))
	if err != nil {
		return false, "", err
	}
	record, ok := export[p.Path(env, deployType)]
	if !ok {
		return false, "", nil // no prior record: nothing to drift from
	}
	prior := record["manifest_sha1"]
	current := ManifestSHA1(manifestBytes)
	return prior != "" && prior != current, prior, nil
}
