package compose

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"gopkg.in/yaml.v3"
)

// FragmentResolver asks the kit for the fragment files enabled by the
// given feature list, in whatever order the kit chooses — the selection
// is opaque to the Composer (§4.7 step 2).
type FragmentResolver func(features []string) ([]string, error)

// CloudConfigProvider supplies the downloaded BOSH cloud-config file for
// a non-self-contained deployment (§4.7 step 3), typically the Config
// Fetcher.
type CloudConfigProvider interface {
	CloudConfigFile() (path string, ok bool)
}

// DirFragmentResolver returns a FragmentResolver that looks up one
// fragment file per enabled feature under kitDir/manifests/<feature>.yml,
// skipping any feature the kit doesn't supply a fragment for.
func DirFragmentResolver(kitDir string) FragmentResolver {
	return func(features []string) ([]string, error) {
		var out []string
		for _, feature := range features {
			path := filepath.Join(kitDir, "manifests", feature+".yml")
			if _, err := os.Stat(path); err == nil {
				out = append(out, path)
			}
		}
		return out, nil
	}
}

// Composer builds the Environment Composer's file list and produces
// parameter and manifest views for a named environment.
type Composer struct {
	Root        string
	CacheDir    string
	Merger      *Merger
	Fragments   FragmentResolver
	CloudConfig CloudConfigProvider
	Kit         KitInfo

	mu         sync.Mutex
	cachedCwd  string
	paramCache map[string]*ParameterView
}

// NewComposer builds a Composer rooted at root (the directory holding
// the environment's <name>.yml hierarchy).
func NewComposer(root string, merger *Merger) *Composer {
	return &Composer{
		Root:       root,
		Merger:     merger,
		paramCache: map[string]*ParameterView{},
	}
}

// invalidateIfCwdChanged drops the parameter-view cache when the
// process's working directory has moved since the last build, per the
// Environment Parameters lifecycle in §3.
func (c *Composer) invalidateIfCwdChanged() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cwd != c.cachedCwd {
		c.cachedCwd = cwd
		c.paramCache = map[string]*ParameterView{}
	}
}

// BuildFileList assembles the ordered file sequence for envName.
func (c *Composer) BuildFileList(envName string, features []string) (*FileList, error) {
	if err := ValidateName(envName); err != nil {
		return nil, err
	}

	ancestors, err := buildAncestorChain(c.Root, c.CacheDir, envName)
	if err != nil {
		return nil, err
	}
	if len(ancestors) == 0 {
		return nil, genesiserrors.ConfigError{
			Field:      "environment",
			Value:      envName,
			Message:    "no environment file found for " + envName + ".yml in the name hierarchy",
			Suggestion: "create " + envName + ".yml, or check genesis.inherits entries",
		}
	}

	prologuePath, err := writeGenerated("genesis-prologue-", genPrologue(envName))
	if err != nil {
		return nil, err
	}

	var fragments []string
	if c.Fragments != nil {
		fragments, err = c.Fragments(features)
		if err != nil {
			os.Remove(prologuePath)
			return nil, err
		}
	}

	var cloudConfig string
	if c.CloudConfig != nil {
		if path, ok := c.CloudConfig.CloudConfigFile(); ok {
			cloudConfig = path
		}
	}

	epiloguePath, err := writeGenerated("genesis-epilogue-", genEpilogue(envName, c.Kit, features))
	if err != nil {
		os.Remove(prologuePath)
		return nil, err
	}

	return &FileList{
		Prologue:     prologuePath,
		KitFragments: fragments,
		CloudConfig:  cloudConfig,
		Ancestors:    ancestors,
		Epilogue:     epiloguePath,
	}, nil
}

// ParameterView returns the cached (or freshly merged) parameter view
// for envName: steps 1+4+5+6 with evaluation suppressed.
func (c *Composer) ParameterView(ctx context.Context, envName string, features []string) (*ParameterView, error) {
	c.invalidateIfCwdChanged()

	c.mu.Lock()
	if v, ok := c.paramCache[envName]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	files, err := c.BuildFileList(envName, features)
	if err != nil {
		return nil, err
	}
	defer files.Cleanup()

	out, err := c.Merger.Merge(ctx, files.ParameterFiles(), true)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(out, &raw); err != nil {
		return nil, genesiserrors.ConfigError{Message: "parameter view did not parse as YAML: " + err.Error()}
	}
	view := newParameterView(raw)

	c.mu.Lock()
	c.paramCache[envName] = view
	c.mu.Unlock()
	return view, nil
}

// ManifestView returns the fully-evaluated manifest for envName: all
// six steps merged with evaluation enabled, retried adaptively if the
// store is unreachable or a reference cannot resolve.
func (c *Composer) ManifestView(ctx context.Context, envName string, features []string) (map[string]interface{}, error) {
	files, err := c.BuildFileList(envName, features)
	if err != nil {
		return nil, err
	}
	defer files.Cleanup()

	out, err := c.Merger.Merge(ctx, files.ManifestFiles(), false)
	if err != nil {
		if _, ok := err.(*MergeError); !ok {
			return nil, err
		}
		out, err = c.Merger.AdaptiveMerge(ctx, files.ManifestFiles())
		if err != nil {
			return nil, err
		}
	}

	var manifest map[string]interface{}
	if err := yaml.Unmarshal(out, &manifest); err != nil {
		return nil, genesiserrors.ConfigError{Message: "manifest view did not parse as YAML: " + err.Error()}
	}
	return manifest, nil
}
