// Package configfetcher implements the Config Fetcher (§4.9): it
// downloads named deployment-time configs from the BOSH director into a
// workdir and tracks them by (type,name), expanding a "*" wildcard name
// into every config of that type actually present on the director.
package configfetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
)

// Director is the subset of boshdriver.Driver the fetcher needs, so it
// can be faked in tests without a real BOSH CLI.
type Director interface {
	Configs(ctx context.Context, boshEnv, typ string) ([]boshdriver.ConfigEntry, error)
	DownloadConfig(ctx context.Context, boshEnv, typ, name string) (string, error)
}

// Fetcher downloads and tracks (type,name) configs for one environment.
type Fetcher struct {
	Director Director
	BoshEnv  string
	WorkDir  string

	downloaded map[string]string // "type/name" -> file path
}

// New constructs a Fetcher rooted at workDir.
func New(director Director, boshEnv, workDir string) *Fetcher {
	return &Fetcher{Director: director, BoshEnv: boshEnv, WorkDir: workDir, downloaded: map[string]string{}}
}

func key(typ, name string) string { return typ + "/" + name }

// Fetch downloads the named config, or every config of typ when name is
// "*", writing each into the workdir and recording each
// actually-downloaded (type,name) pair separately.
func (f *Fetcher) Fetch(ctx context.Context, typ, name string) error {
	if name != "*" {
		return f.fetchOne(ctx, typ, name)
	}

	entries, err := f.Director.Configs(ctx, f.BoshEnv, typ)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := f.fetchOne(ctx, typ, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, typ, name string) error {
	content, err := f.Director.DownloadConfig(ctx, f.BoshEnv, typ, name)
	if err != nil {
		return err
	}
	path := f.destPath(typ, name)
	if err := writeConfigFile(path, content); err != nil {
		return err
	}
	f.downloaded[key(typ, name)] = path
	return nil
}

// ConfigFile returns the workdir path of a previously fetched (type,name)
// config, if any.
func (f *Fetcher) ConfigFile(typ, name string) (string, bool) {
	path, ok := f.downloaded[key(typ, name)]
	return path, ok
}

// Downloaded returns every (type,name) pair actually fetched so far.
func (f *Fetcher) Downloaded() []boshdriver.ConfigEntry {
	out := make([]boshdriver.ConfigEntry, 0, len(f.downloaded))
	for k := range f.downloaded {
		parts := strings.SplitN(k, "/", 2)
		out = append(out, boshdriver.ConfigEntry{Type: parts[0], Name: parts[1]})
	}
	return out
}

// EnvVars mirrors every downloaded config into the GENESIS_<TYPE>_CONFIG
// / GENESIS_<TYPE>_CONFIG_<NAME> shape the hook environment contract
// documents (§6): every fetched config gets a name-qualified variant,
// and the bare GENESIS_<TYPE>_CONFIG form points at one of them so a
// hook needing only a single config of a type doesn't need to know its
// name. When several configs of one type were fetched, which of them
// the bare form points at is not defined.
func (f *Fetcher) EnvVars() map[string]string {
	out := map[string]string{}
	for k, path := range f.downloaded {
		parts := strings.SplitN(k, "/", 2)
		typ, name := parts[0], parts[1]
		upperType := strings.ToUpper(typ)
		out[fmt.Sprintf("GENESIS_%s_CONFIG", upperType)] = path
		out[fmt.Sprintf("GENESIS_%s_CONFIG_%s", upperType, strings.ToUpper(name))] = path
	}
	return out
}

// destPath is the workdir-relative path a downloaded config is written
// to: <workdir>/configs/<type>/<name>.yml.
func (f *Fetcher) destPath(typ, name string) string {
	return filepath.Join(f.WorkDir, "configs", typ, name+".yml")
}

func writeConfigFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
