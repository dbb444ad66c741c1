// Package boshdriver adapts the external BOSH CLI: probing candidate
// binaries (bosh, bosh2, boshv2) for the highest one meeting a configured
// minimum version, then driving `deploy`, `create-env`, `configs`
// downloads, and stemcell listing (§6 "BOSH driver operations"). Like
// pkg/store, it never talks to the director API directly — every
// operation shells out through pkg/execenv.
package boshdriver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/pkg/execenv"
)

// candidateBinaries is probed in this order; among those meeting
// MinVersion the highest version wins, and the earliest in this list
// wins among equal versions.
var candidateBinaries = []string{"bosh", "bosh2", "boshv2"}

// Driver drives one of the candidate BOSH CLI binaries.
type Driver struct {
	Executor   execenv.CommandExecutor
	Binary     string
	MinVersion string
}

// Probe finds the highest-version candidate binary meeting minVersion
// and returns a Driver bound to it. Fails with a DependencyError when no
// candidate is found or none meets the minimum.
func Probe(ctx context.Context, executor execenv.CommandExecutor, minVersion string) (*Driver, error) {
	var best string
	var bestVersion string

	for _, candidate := range candidateBinaries {
		version, err := probeVersion(ctx, executor, candidate)
		if err != nil {
			continue
		}
		if minVersion != "" && compareVersions(version, minVersion) < 0 {
			continue
		}
		if best == "" || compareVersions(version, bestVersion) > 0 {
			best = candidate
			bestVersion = version
		}
	}

	if best == "" {
		return nil, genesiserrors.DependencyError{
			Binary:     strings.Join(candidateBinaries, "/"),
			MinVersion: minVersion,
			Message:    "no compatible BOSH CLI found on PATH",
			Suggestion: "install the BOSH CLI: https://bosh.io/docs/cli-v2-install/",
		}
	}

	return &Driver{Executor: executor, Binary: best, MinVersion: minVersion}, nil
}

var versionLineRe = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

func probeVersion(ctx context.Context, executor execenv.CommandExecutor, binary string) (string, error) {
	stdout, _, err := executor.Execute(ctx, binary, "--version")
	if err != nil {
		return "", err
	}
	m := versionLineRe.FindString(string(stdout))
	if m == "" {
		return "", fmt.Errorf("boshdriver: could not parse version from %q output", binary)
	}
	return m, nil
}

// compareVersions compares two dotted-triple version strings, returning
// -1, 0, or 1. Not a full semver implementation — genesis only ever
// compares the BOSH CLI's and its own reported x.y.z against a
// configured minimum, so a five-line integer-triple comparator covers
// every case that occurs in practice.
func compareVersions(a, b string) int {
	pa, pb := splitVersion(a), splitVersion(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(parts[i])
		out[i] = n
	}
	return out
}

// DeployOptions carries the caller-passed flags for a Deploy or
// CreateEnv invocation.
type DeployOptions struct {
	BoshEnv      string
	Deployment   string
	ManifestFile string
	VarsFile     string
	StateFile    string
	ExtraArgs    []string
	NonInteractive bool
}

func (d *Driver) args(opts DeployOptions, op string) []string {
	args := []string{}
	if opts.BoshEnv != "" {
		args = append(args, "-e", opts.BoshEnv)
	}
	if opts.Deployment != "" {
		args = append(args, "-d", opts.Deployment)
	}
	args = append(args, op, opts.ManifestFile)
	if opts.VarsFile != "" {
		args = append(args, "--vars-file", opts.VarsFile)
	}
	if op == "create-env" && opts.StateFile != "" {
		args = append(args, "--state", opts.StateFile)
	}
	if opts.NonInteractive {
		args = append(args, "-n")
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

// DeployResult is the outcome of a Deploy or CreateEnv invocation.
type DeployResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Deploy runs `bosh deploy` against a director.
func (d *Driver) Deploy(ctx context.Context, opts DeployOptions) (DeployResult, error) {
	return d.run(ctx, d.args(opts, "deploy"))
}

// CreateEnv runs `bosh create-env` for a local (director-less) deploy.
func (d *Driver) CreateEnv(ctx context.Context, opts DeployOptions) (DeployResult, error) {
	return d.run(ctx, d.args(opts, "create-env"))
}

func (d *Driver) run(ctx context.Context, args []string) (DeployResult, error) {
	stdout, stderr, err := d.Executor.Execute(ctx, d.Binary, args...)
	res := DeployResult{Stdout: string(stdout), Stderr: string(stderr)}
	if err != nil {
		if code, ok := execenv.ExitCode(err); ok {
			res.ExitCode = code
		}
		return res, err
	}
	return res, nil
}

// ConfigEntry is one BOSH-director deployment-time config, by (type,name).
type ConfigEntry struct {
	Type    string
	Name    string
	Content string
}

// Configs lists every config of typ currently on the director. Used to
// expand a "*" wildcard config request into the set of actually-present
// names.
func (d *Driver) Configs(ctx context.Context, boshEnv, typ string) ([]ConfigEntry, error) {
	args := []string{}
	if boshEnv != "" {
		args = append(args, "-e", boshEnv)
	}
	args = append(args, "configs", "--type", typ, "--json")
	stdout, stderr, err := d.Executor.Execute(ctx, d.Binary, args...)
	if err != nil {
		return nil, genesiserrors.CommandError{Command: "bosh configs", Message: strings.TrimSpace(string(stderr))}
	}
	return parseConfigsJSON(typ, stdout)
}

// DownloadConfig fetches the named (typ,name) config's content.
func (d *Driver) DownloadConfig(ctx context.Context, boshEnv, typ, name string) (string, error) {
	args := []string{}
	if boshEnv != "" {
		args = append(args, "-e", boshEnv)
	}
	args = append(args, "config", "--type", typ, "--name", name)
	stdout, stderr, err := d.Executor.Execute(ctx, d.Binary, args...)
	if err != nil {
		return "", genesiserrors.CommandError{Command: "bosh config", Message: strings.TrimSpace(string(stderr))}
	}
	return string(stdout), nil
}

// Stemcell is one entry from `bosh stemcells`.
type Stemcell struct {
	Name    string
	Version string
	OS      string
}

// Stemcells lists every stemcell uploaded to the director.
func (d *Driver) Stemcells(ctx context.Context, boshEnv string) ([]Stemcell, error) {
	args := []string{}
	if boshEnv != "" {
		args = append(args, "-e", boshEnv)
	}
	args = append(args, "stemcells", "--json")
	stdout, stderr, err := d.Executor.Execute(ctx, d.Binary, args...)
	if err != nil {
		return nil, genesiserrors.CommandError{Command: "bosh stemcells", Message: strings.TrimSpace(string(stderr))}
	}
	return parseStemcellsJSON(stdout)
}

// ResolveStemcellVersion resolves a requested version against the
// director's available stemcells, honoring "latest" (highest overall)
// and "<N>.latest" (highest patch within major line N). An exact
// version is returned unchanged if present.
func ResolveStemcellVersion(stemcells []Stemcell, name, os, requested string) (string, error) {
	var candidates []string
	for _, s := range stemcells {
		if s.Name == name && s.OS == os {
			candidates = append(candidates, s.Version)
		}
	}
	if len(candidates) == 0 {
		return "", genesiserrors.ConfigError{
			Field:   "stemcell",
			Value:   name,
			Message: fmt.Sprintf("no stemcell %q (os %q) found on director", name, os),
		}
	}

	if requested == "latest" {
		return highestVersion(candidates), nil
	}
	if strings.HasSuffix(requested, ".latest") {
		major := strings.TrimSuffix(requested, ".latest")
		var inLine []string
		for _, v := range candidates {
			if strings.HasPrefix(v, major+".") || v == major {
				inLine = append(inLine, v)
			}
		}
		if len(inLine) == 0 {
			return "", genesiserrors.ConfigError{
				Field:   "stemcell",
				Value:   requested,
				Message: fmt.Sprintf("no stemcell version in the %s.x line", major),
			}
		}
		return highestVersion(inLine), nil
	}

	for _, v := range candidates {
		if v == requested {
			return v, nil
		}
	}
	return "", genesiserrors.ConfigError{
		Field:   "stemcell",
		Value:   requested,
		Message: "requested stemcell version not found on director",
	}
}

func highestVersion(versions []string) string {
	best := versions[0]
	for _, v := range versions[1:] {
		if compareDotted(v, best) > 0 {
			best = v
		}
	}
	return best
}

// compareDotted compares arbitrary-length dotted version strings
// (stemcell versions can be "1.234" rather than a strict x.y.z triple).
func compareDotted(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}
