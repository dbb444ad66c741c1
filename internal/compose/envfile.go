// Package compose implements the Environment Composer: it resolves an
// environment name into the ordered list of files that describe it
// (generated prologue/epilogue, kit fragments, cloud-config, and the
// name-hierarchy plus inherits chain of environment files) and merges
// them into a parameter view (deferred evaluation) or a manifest view
// (full evaluation, with an adaptive retry against unresolvable
// operators).
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"gopkg.in/yaml.v3"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*[a-z0-9]$`)

// ValidateName checks an environment name against the naming grammar:
// lowercase, starts with a letter, no consecutive hyphens, no whitespace.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return genesiserrors.ConfigError{
			Field:      "genesis.env",
			Value:      name,
			Message:    "environment name must match ^[a-z][a-z0-9_-]*[a-z0-9]$",
			Suggestion: "use lowercase letters, digits, underscores and hyphens only",
		}
	}
	if strings.Contains(name, "--") {
		return genesiserrors.ConfigError{
			Field:      "genesis.env",
			Value:      name,
			Message:    "environment name must not contain consecutive hyphens",
			Suggestion: "collapse the double hyphen",
		}
	}
	return nil
}

// Decompose splits an environment name on "-" into its ancestor prefix
// sequence: "a-b-c-d" decomposes to ["a", "a-b", "a-b-c", "a-b-c-d"].
func Decompose(name string) []string {
	parts := strings.Split(name, "-")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "-"))
	}
	return out
}

// Reaction is a single {script|addon, args, var} entry from a
// genesis.reactions.{pre-deploy,post-deploy} list.
type Reaction struct {
	Script string   `yaml:"script,omitempty"`
	Addon  string   `yaml:"addon,omitempty"`
	Args   []string `yaml:"args,omitempty"`
	Var    string   `yaml:"var,omitempty"`
}

// GenesisBlock is the recognized genesis.* key set from §6.
type GenesisBlock struct {
	Env           string                `yaml:"env"`
	MinVersion    string                `yaml:"min_version,omitempty"`
	BoshEnv       string                `yaml:"bosh_env,omitempty"`
	UseCreateEnv  bool                  `yaml:"use_create_env,omitempty"`
	CredhubEnv    string                `yaml:"credhub_env,omitempty"`
	RootCAPath    string                `yaml:"root_ca_path,omitempty"`
	SecretsMount  string                `yaml:"secrets_mount,omitempty"`
	SecretsPath   string                `yaml:"secrets_path,omitempty"`
	ExodusMount   string                `yaml:"exodus_mount,omitempty"`
	CIMount       string                `yaml:"ci_mount,omitempty"`
	Inherits      []string              `yaml:"inherits,omitempty"`
	Reactions     map[string][]Reaction `yaml:"reactions,omitempty"`
}

// KitBlock is the kit.* key set: name/version/features/overrides.
type KitBlock struct {
	Name      string                 `yaml:"name,omitempty"`
	Version   string                 `yaml:"version,omitempty"`
	Features  []string               `yaml:"features,omitempty"`
	Overrides map[string]interface{} `yaml:"overrides,omitempty"`
}

// EnvironmentFile is one parsed <name>.yml on disk.
type EnvironmentFile struct {
	Path    string                 `yaml:"-"`
	Genesis GenesisBlock           `yaml:"genesis"`
	Kit     KitBlock               `yaml:"kit,omitempty"`
	Params  map[string]interface{} `yaml:"params,omitempty"`
}

// LoadEnvironmentFile reads and parses an environment file, verifying it
// declares its own name (genesis.env) matching its filename stem.
func LoadEnvironmentFile(path string) (*EnvironmentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, genesiserrors.UserError{
			Message:    fmt.Sprintf("failed to read environment file %s", path),
			Details:    err.Error(),
			Suggestion: "check file permissions and path",
			Err:        err,
		}
	}

	var ef EnvironmentFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return nil, genesiserrors.ConfigError{
			Field:      "path",
			Value:      path,
			Message:    "invalid YAML syntax in environment file",
			Suggestion: "check indentation and quoting",
		}
	}
	ef.Path = path

	stem := strings.TrimSuffix(filepath.Base(path), ".yml")
	if ef.Genesis.Env == "" {
		return nil, genesiserrors.ConfigError{
			Field:      "genesis.env",
			Value:      path,
			Message:    "environment file does not declare its own name",
			Suggestion: fmt.Sprintf("add 'genesis: {env: %s}'", stem),
		}
	}
	if ef.Genesis.Env != stem {
		return nil, genesiserrors.ConfigError{
			Field:      "genesis.env",
			Value:      ef.Genesis.Env,
			Message:    fmt.Sprintf("does not match filename %q", stem),
			Suggestion: fmt.Sprintf("rename the file to %s.yml or fix genesis.env", ef.Genesis.Env),
		}
	}
	return &ef, nil
}
