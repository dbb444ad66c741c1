// Package reactor implements the Reactor (§4.8): the per-environment
// deploy pipeline that strings together a check phase, manifest
// generation, the kit's pre/post-deploy hooks, declared reactions, the
// BOSH driver invocation, and Exodus publication. It owns no business
// logic of its own beyond sequencing — every step delegates to the
// component that already implements it.
package reactor

import (
	"context"
	"time"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	"github.com/genesis-deploy/genesis/internal/compose"
	"github.com/genesis-deploy/genesis/internal/configfetcher"
	"github.com/genesis-deploy/genesis/internal/exodus"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"github.com/genesis-deploy/genesis/internal/kit"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/planvalidate"
	"github.com/genesis-deploy/genesis/internal/secretplan"
)

// ExportingStore is the subset of pkg/store.Client the check phase needs
// to pull materialized secrets for planvalidate.Validator.ValidateAll.
type ExportingStore interface {
	Export(ctx context.Context, prefixes ...string) (map[string]map[string]string, error)
}

// Deps bundles the already-constructed components the Reactor sequences.
// Every field is a concrete collaborator built once at the call site
// (typically cmd/genesis) and reused across deploys.
type Deps struct {
	Log       *logging.Logger
	Composer  *compose.Composer
	Hooks     *hookrunner.Runner
	Validator *planvalidate.Validator
	Fetcher   *configfetcher.Fetcher
	Bosh      *boshdriver.Driver
	Exodus    *exodus.Publisher
	Store     ExportingStore

	// GenesisRoot is the deployment repository root; the last deployed
	// redacted manifest is cached at .genesis/manifests/<env>.yml under it.
	GenesisRoot string
	// WorkDir is a scratch directory for this run's generated files
	// (unredacted manifest, pre-deploy datafile, vars file).
	WorkDir string
}

// CallInfo mirrors the GENESIS_CALL_{BIN,ENV,PREFIX,FULL} quartet: how
// the invoking wrapper script identified itself to the engine.
type CallInfo struct {
	Bin    string
	Env    string
	Prefix string
	Full   string
}

// CredHub carries the upstream credhub connection details a hook's
// CREDHUB_* environment expects. Resolving these from an upstream
// Exodus record is the caller's job (the BOSH director's own deployment
// is an out-of-scope external collaborator); the Reactor only forwards
// whatever it is given.
type CredHub struct {
	Server string
	Client string
	Secret string
	CACert string
}

// BoshCreds carries the BOSH_{CA_CERT,CLIENT,CLIENT_SECRET} triple for
// director authentication, forwarded the same way as CredHub.
type BoshCreds struct {
	CACert       string
	Client       string
	ClientSecret string
}

// StemcellCheck names one manifest-declared stemcell requirement the
// check phase resolves against the director's uploaded stemcells.
type StemcellCheck struct {
	Name      string
	OS        string
	Requested string // exact version, "latest", or "<major>.latest"
}

// Options carries everything specific to a single Deploy call.
type Options struct {
	Env      *compose.EnvironmentFile
	Kit      *kit.Metadata
	Plans    []secretplan.Plan
	Features []string

	Call          CallInfo
	EngineVersion string

	TargetVaultURL string
	VerifyVault    bool

	CredHub   CredHub
	BoshCreds BoshCreds

	StemcellChecks []StemcellCheck

	DryRun         bool
	NonInteractive bool

	Deployment      string
	ExtraDeployArgs []string
	StateFile       string // create-env only
}

// StageName tags one step of the pipeline for Result.Stages and metrics.
type StageName string

const (
	StageCheck            StageName = "check"
	StageManifest         StageName = "manifest"
	StagePreDeployHook    StageName = "pre-deploy-hook"
	StageReactionsPre     StageName = "reactions-pre-deploy"
	StageWriteManifest    StageName = "write-manifest"
	StageDeploy           StageName = "deploy"
	StageExodus           StageName = "exodus"
	StagePostDeployHook   StageName = "post-deploy-hook"
	StageReactionsPost    StageName = "reactions-post-deploy"
)

// StageResult records one pipeline step's outcome.
type StageResult struct {
	Stage    StageName
	Err      error
	Duration time.Duration
}

// CheckReport is the outcome of the check phase (step 1).
type CheckReport struct {
	HookRan        bool
	HookResult     hookrunner.Result
	SecretResults  []planvalidate.Result
	MissingConfigs []string
	Stemcells      map[string]string // "name/os/requested" -> resolved version
}

// OK reports whether the check phase found nothing that should block a
// deploy: no failed hook, no error/missing secret, no missing config or
// unresolved stemcell.
func (r *CheckReport) OK() bool {
	if r.HookRan && r.HookResult.Err != nil {
		return false
	}
	for _, res := range r.SecretResults {
		if res.Status == planvalidate.StatusError || res.Status == planvalidate.StatusMissing {
			return false
		}
	}
	return len(r.MissingConfigs) == 0
}

// Result is the full outcome of a Deploy call.
type Result struct {
	Stages []StageResult
	Check  *CheckReport

	UnredactedManifestPath string
	RedactedManifestPath   string
	VarsPath               string

	Deployed        bool
	DeployResult    boshdriver.DeployResult
	DeployErr       error
	ExodusPublished bool
}
