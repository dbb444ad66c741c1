package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileList is the ordered sequence of files the Composer merges for one
// environment, per §4.7's six-step recipe.
type FileList struct {
	Prologue     string
	KitFragments []string
	CloudConfig  string
	Ancestors    []string
	Epilogue     string
}

// ParameterFiles returns steps 1+4+5+6: prologue, the hierarchy/inherits
// chain, and epilogue, merged with evaluation suppressed.
func (f *FileList) ParameterFiles() []string {
	out := make([]string, 0, len(f.Ancestors)+2)
	out = append(out, f.Prologue)
	out = append(out, f.Ancestors...)
	out = append(out, f.Epilogue)
	return out
}

// ManifestFiles returns the complete steps 1-6, merged with full
// evaluation.
func (f *FileList) ManifestFiles() []string {
	out := make([]string, 0, len(f.KitFragments)+len(f.Ancestors)+3)
	out = append(out, f.Prologue)
	out = append(out, f.KitFragments...)
	if f.CloudConfig != "" {
		out = append(out, f.CloudConfig)
	}
	out = append(out, f.Ancestors...)
	out = append(out, f.Epilogue)
	return out
}

// Cleanup removes the generated prologue/epilogue temp files. It does
// not touch kit fragments, the cloud-config file, or ancestor files —
// those are owned by the kit, the Config Fetcher, and the environment
// directory respectively.
func (f *FileList) Cleanup() {
	if f.Prologue != "" {
		os.Remove(f.Prologue)
	}
	if f.Epilogue != "" {
		os.Remove(f.Epilogue)
	}
}

func writeGenerated(prefix, content string) (string, error) {
	f, err := os.CreateTemp("", prefix+"*.yml")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// genPrologue is the step-1 generated defaults file: empty features,
// empty exodus, a vault mount reference, a minimal genesis block.
func genPrologue(envName string) string {
	return fmt.Sprintf(`genesis:
  env: %s
kit:
  features: []
exodus: {}
params: {}
secrets:
  mount: secret/
`, envName)
}

// KitInfo names the kit a deployment's epilogue metadata skeleton
// should record.
type KitInfo struct {
	Name    string
	Version string
}

// genEpilogue is the step-6 generated file: the environment name and an
// Exodus metadata skeleton (version, timestamp, deployer, kit name and
// version, features, director). It does not set a deployment name or
// any secret mount path. Fields the Composer cannot know at compose
// time (timestamp, deployer identity) are left deferred rather than
// guessed.
func genEpilogue(envName string, kit KitInfo, features []string) string {
	featureList := "[]"
	if len(features) > 0 {
		quoted := make([]string, len(features))
		for i, feat := range features {
			quoted[i] = fmt.Sprintf("%q", feat)
		}
		featureList = "[" + strings.Join(quoted, ", ") + "]"
	}
	return fmt.Sprintf(`genesis:
  env: %s
exodus:
  version: 1
  timestamp: (( defer now ))
  deployer: (( defer username ))
  kit_name: %q
  kit_version: %q
  features: %s
  director: (( grab genesis.bosh_env || "" ))
`, envName, kit.Name, kit.Version, featureList)
}

// resolveAncestorPath prefers a cache-directory copy of name.yml (used
// when deploying downstream of another environment's pipeline) and
// falls back to the environment directory; "" if neither exists.
func resolveAncestorPath(root, cacheDir, name string) string {
	if cacheDir != "" {
		cached := filepath.Join(cacheDir, name+".yml")
		if _, err := os.Stat(cached); err == nil {
			return cached
		}
	}
	local := filepath.Join(root, name+".yml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	return ""
}

// buildAncestorChain resolves the name-hierarchy file sequence for
// envName (step 4) plus any genesis.inherits chains transitively
// referenced from within it (step 5), each inserted immediately before
// the ancestor that references it. Files that don't exist on disk are
// silently skipped, per §4.7. A name visited twice (shared inherits, or
// an inherits cycle) is merged only once, at its first position.
func buildAncestorChain(root, cacheDir, envName string) ([]string, error) {
	var result []string
	visited := map[string]bool{}

	var resolve func(name string) error
	resolve = func(name string) error {
		if visited[name] {
			return nil
		}
		visited[name] = true

		path := resolveAncestorPath(root, cacheDir, name)
		if path == "" {
			return nil
		}
		ef, err := LoadEnvironmentFile(path)
		if err != nil {
			return err
		}
		for _, inherited := range ef.Genesis.Inherits {
			if err := resolve(inherited); err != nil {
				return err
			}
		}
		result = append(result, path)
		return nil
	}

	for _, prefix := range Decompose(envName) {
		if err := resolve(prefix); err != nil {
			return nil, err
		}
	}
	return result, nil
}
