package reactor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var varNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// secretValueSet flattens a secrets export tree into the set of known
// secret values the redact pass should look for verbatim in the
// rendered manifest.
func secretValueSet(export map[string]map[string]string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, kv := range export {
		for _, v := range kv {
			if len(v) > 3 {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// redactManifest walks manifest depth-first, replacing any leaf string
// that matches a known secret value with a `(( var_name ))` BOSH
// operator, and returns both the redacted tree and the var-name -> value
// map that belongs in the companion variables file.
func redactManifest(manifest map[string]interface{}, secrets map[string]struct{}) (map[string]interface{}, map[string]string) {
	vars := map[string]string{}
	out := redactValue("", manifest, secrets, vars).(map[string]interface{})
	return out, vars
}

func redactValue(path string, v interface{}, secrets map[string]struct{}, vars map[string]string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = redactValue(joinPath(path, k), val, secrets, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactValue(fmt.Sprintf("%s.%d", path, i), val, secrets, vars)
		}
		return out
	case string:
		if _, isSecret := secrets[t]; isSecret {
			name := varName(path)
			vars[name] = t
			return fmt.Sprintf("(( %s ))", name)
		}
		return t
	default:
		return t
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func varName(path string) string {
	lower := strings.ToLower(path)
	sanitized := varNameSanitizer.ReplaceAllString(lower, "_")
	return strings.Trim(sanitized, "_")
}

// writeManifestFiles writes the unredacted manifest to the workdir, and
// the redacted manifest plus its vars file, returning their paths.
func (r *Reactor) writeManifestFiles(envName string, unredacted, redacted map[string]interface{}, vars map[string]string) (unredactedPath, redactedPath, varsPath string, err error) {
	if err = os.MkdirAll(r.Deps.WorkDir, 0o755); err != nil {
		return "", "", "", err
	}

	unredactedPath = filepath.Join(r.Deps.WorkDir, envName+"-unredacted.yml")
	if err = writeYAML(unredactedPath, unredacted); err != nil {
		return "", "", "", err
	}

	redactedPath = filepath.Join(r.Deps.WorkDir, envName+".yml")
	if err = writeYAML(redactedPath, redacted); err != nil {
		return "", "", "", err
	}

	varsPath = filepath.Join(r.Deps.WorkDir, envName+".vars")
	if err = writeYAML(varsPath, vars); err != nil {
		return "", "", "", err
	}
	return unredactedPath, redactedPath, varsPath, nil
}

func writeYAML(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// cachedManifestPath is where the last successful deploy's redacted
// manifest lives, per §6's persisted state layout.
func (r *Reactor) cachedManifestPath(envName string) string {
	return filepath.Join(r.Deps.GenesisRoot, ".genesis", "manifests", envName+".yml")
}

// diffAgainstCache compares the freshly redacted manifest bytes against
// the cached one from the last deploy, if any. changed is false when
// there is no cached manifest yet (first deploy).
func (r *Reactor) diffAgainstCache(envName string, redacted []byte) (changed bool, err error) {
	cached, err := os.ReadFile(r.cachedManifestPath(envName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return string(cached) != string(redacted), nil
}

// promoteManifestToCache copies the redacted manifest into the
// persisted .genesis/manifests/<env>.yml location, step 7's "copy
// redacted manifest into .genesis/manifests/<env>.yml".
func (r *Reactor) promoteManifestToCache(envName string, redacted []byte) error {
	dest := r.cachedManifestPath(envName)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, redacted, 0o600)
}
