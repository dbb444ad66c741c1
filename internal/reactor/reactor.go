package reactor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	"github.com/genesis-deploy/genesis/internal/compose"
	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
	"gopkg.in/yaml.v3"
)

// Reactor drives one environment through the check -> manifest ->
// pre-deploy -> reactions -> deploy -> post-deploy -> Exodus pipeline.
type Reactor struct {
	Deps Deps
}

// New constructs a Reactor bound to deps.
func New(deps Deps) *Reactor {
	return &Reactor{Deps: deps}
}

// Deploy runs the full pipeline for opts.Env. A dry run skips steps 7
// and 8 (Exodus publication and post-deploy) entirely; a deploy error
// skips only step 7, since post-deploy reactions must still see a
// non-zero GENESIS_DEPLOY_RC (§7 taxonomy item 7).
func (r *Reactor) Deploy(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}
	envName := opts.Env.Genesis.Env

	export, err := r.secretsExport(ctx, opts)
	if err != nil {
		r.record(res, StageCheck, err, 0)
		return res, err
	}

	if err := r.stage(res, StageCheck, func() error {
		report, checkErr := r.runCheck(ctx, opts, export)
		res.Check = report
		return checkErr
	}); err != nil {
		return res, err
	}

	var manifest map[string]interface{}
	if err := r.stage(res, StageManifest, func() error {
		var mErr error
		manifest, mErr = r.Deps.Composer.ManifestView(ctx, envName, opts.Features)
		return mErr
	}); err != nil {
		return res, err
	}

	if opts.Kit != nil {
		if path, ok := opts.Kit.Hooks["pre-deploy"]; ok && path != "" {
			if err := r.stage(res, StagePreDeployHook, func() error {
				datafile := filepath.Join(r.Deps.WorkDir, envName+".predeploy.data")
				out := r.Deps.Hooks.Run(ctx, hookrunner.Invocation{
					Variant: hookrunner.KitHook,
					Path:    path,
					Env:     r.hookEnv(opts, "pre-deploy", map[string]string{"GENESIS_PREDEPLOY_DATAFILE": datafile}),
				})
				if out.Err != nil {
					return out.Err
				}
				return os.WriteFile(datafile, out.Stdout, 0o600)
			}); err != nil {
				return res, err
			}
		}
	}

	if reactions := opts.Env.Genesis.Reactions["pre-deploy"]; len(reactions) > 0 {
		if err := r.stage(res, StageReactionsPre, func() error {
			return r.runReactions(ctx, reactions, r.hookEnv(opts, "pre-deploy", nil))
		}); err != nil {
			return res, err
		}
	}

	secrets := secretValueSet(export)
	redacted, vars := redactManifest(manifest, secrets)

	var unredactedPath, redactedPath, varsPath string
	var redactedBytes []byte
	if err := r.stage(res, StageWriteManifest, func() error {
		var wErr error
		unredactedPath, redactedPath, varsPath, wErr = r.writeManifestFiles(envName, manifest, redacted, vars)
		if wErr != nil {
			return wErr
		}
		redactedBytes, wErr = yaml.Marshal(redacted)
		if wErr != nil {
			return wErr
		}

		changed, dErr := r.diffAgainstCache(envName, redactedBytes)
		if dErr != nil {
			return dErr
		}
		if changed && !opts.NonInteractive {
			return genesiserrors.UserError{
				Message:    fmt.Sprintf("manifest for %s differs from the last deployed state", envName),
				Suggestion: "re-run with confirmation (non-interactive mode) once you've reviewed the diff",
			}
		}
		return nil
	}); err != nil {
		return res, err
	}
	res.UnredactedManifestPath = unredactedPath
	res.RedactedManifestPath = redactedPath
	res.VarsPath = varsPath

	deployOpts := boshdriver.DeployOptions{
		BoshEnv:        opts.Env.Genesis.BoshEnv,
		Deployment:     opts.Deployment,
		ManifestFile:   unredactedPath,
		VarsFile:       varsPath,
		StateFile:      opts.StateFile,
		ExtraArgs:      opts.ExtraDeployArgs,
		NonInteractive: opts.NonInteractive,
	}

	var deployResult boshdriver.DeployResult
	var deployErr error
	start := time.Now()
	if opts.Env.Genesis.UseCreateEnv {
		deployResult, deployErr = r.Deps.Bosh.CreateEnv(ctx, deployOpts)
	} else {
		deployResult, deployErr = r.Deps.Bosh.Deploy(ctx, deployOpts)
	}
	deployDuration := time.Since(start)
	r.record(res, StageDeploy, deployErr, deployDuration)
	recordStage(StageDeploy, deployErr, deployDuration)
	res.DeployResult = deployResult
	res.DeployErr = deployErr
	res.Deployed = deployErr == nil

	if opts.DryRun {
		return res, deployErr
	}

	if deployErr == nil {
		if err := r.stage(res, StageExodus, func() error {
			if perr := r.promoteManifestToCache(envName, redactedBytes); perr != nil {
				return perr
			}
			exodusTree := manifest["exodus"]
			deployType := ""
			if opts.Kit != nil {
				deployType = opts.Kit.Name
			}
			if r.Deps.Exodus != nil {
				if perr := r.Deps.Exodus.Publish(ctx, envName, deployType, exodusTree, redactedBytes); perr != nil {
					return perr
				}
			}
			res.ExodusPublished = true
			return nil
		}); err != nil {
			return res, err
		}
	}

	rc := 0
	if deployErr != nil {
		rc = res.DeployResult.ExitCode
		if rc == 0 {
			rc = 1
		}
	}
	postDeployEnv := r.hookEnv(opts, "post-deploy", map[string]string{
		"GENESIS_MANIFEST_FILE":  redactedPath,
		"GENESIS_BOSHVARS_FILE":  varsPath,
		"GENESIS_DEPLOY_OPTIONS": deployOptionsJSON(opts),
		"GENESIS_DEPLOY_DRYRUN":  boolEnv(opts.DryRun),
		"GENESIS_DEPLOY_RC":      fmt.Sprintf("%d", rc),
	})

	if opts.Kit != nil {
		if path, ok := opts.Kit.Hooks["post-deploy"]; ok && path != "" {
			r.stageNoAbort(res, StagePostDeployHook, func() error {
				out := r.Deps.Hooks.Run(ctx, hookrunner.Invocation{Variant: hookrunner.KitHook, Path: path, Env: postDeployEnv})
				return out.Err
			})
		}
	}

	if reactions := opts.Env.Genesis.Reactions["post-deploy"]; len(reactions) > 0 {
		r.stageNoAbort(res, StageReactionsPost, func() error {
			return r.runReactions(ctx, reactions, postDeployEnv)
		})
	}

	if deployErr != nil {
		return res, genesiserrors.DeployError{
			ExitCode:      rc,
			PostDeployRan: true,
			Message:       deployResult.Stderr,
		}
	}
	return res, nil
}

// Check runs the check phase (step 1) in isolation, for `genesis check`
// callers that want the report without running the rest of the pipeline.
func (r *Reactor) Check(ctx context.Context, opts Options) (*CheckReport, error) {
	export, err := r.secretsExport(ctx, opts)
	if err != nil {
		return nil, err
	}
	return r.runCheck(ctx, opts, export)
}

// RenderManifest runs the manifest and write-manifest steps (2 and 6)
// without touching any hook, reaction, or the BOSH driver, for
// `genesis manifest` callers that only want the rendered files on disk.
func (r *Reactor) RenderManifest(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}
	envName := opts.Env.Genesis.Env

	export, err := r.secretsExport(ctx, opts)
	if err != nil {
		return res, err
	}

	var manifest map[string]interface{}
	if err := r.stage(res, StageManifest, func() error {
		var mErr error
		manifest, mErr = r.Deps.Composer.ManifestView(ctx, envName, opts.Features)
		return mErr
	}); err != nil {
		return res, err
	}

	secrets := secretValueSet(export)
	redacted, vars := redactManifest(manifest, secrets)

	if err := r.stage(res, StageWriteManifest, func() error {
		unredactedPath, redactedPath, varsPath, wErr := r.writeManifestFiles(envName, manifest, redacted, vars)
		if wErr != nil {
			return wErr
		}
		res.UnredactedManifestPath = unredactedPath
		res.RedactedManifestPath = redactedPath
		res.VarsPath = varsPath
		return nil
	}); err != nil {
		return res, err
	}
	return res, nil
}

// stage runs fn, records its outcome, and returns its error so the
// caller can abort the pipeline immediately (§5: reactions and plan
// processing are both "abort on first failure").
func (r *Reactor) stage(res *Result, name StageName, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.record(res, name, err, d)
	recordStage(name, err, d)
	if r.Deps.Log != nil {
		if err != nil {
			r.Deps.Log.Error("%s: %v", name, err)
		} else {
			r.Deps.Log.Debug("%s completed in %s", name, d)
		}
	}
	return err
}

// stageNoAbort runs fn and records its outcome without surfacing the
// error to the caller, for step 8's unconditional post-deploy hooks.
func (r *Reactor) stageNoAbort(res *Result, name StageName, fn func() error) {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.record(res, name, err, d)
	recordStage(name, err, d)
}

func (r *Reactor) record(res *Result, name StageName, err error, d time.Duration) {
	res.Stages = append(res.Stages, StageResult{Stage: name, Err: err, Duration: d})
}

// runReactions runs a declared reaction list in order, aborting on the
// first non-zero exit (§5: "last unless ok").
func (r *Reactor) runReactions(ctx context.Context, reactions []compose.Reaction, env map[string]string) error {
	for i, react := range reactions {
		inv := hookrunner.Invocation{Args: react.Args, Env: env}
		switch {
		case react.Script != "":
			inv.Variant = hookrunner.ReactionScript
			inv.Path = react.Script
		case react.Addon != "":
			inv.Variant = hookrunner.ReactionAddon
			inv.Path = react.Addon
		default:
			return fmt.Errorf("reaction %d declares neither script nor addon", i)
		}
		out := r.Deps.Hooks.Run(ctx, inv)
		if out.Err != nil {
			return fmt.Errorf("reaction %d (%s) failed: %w", i, inv.Path, out.Err)
		}
	}
	return nil
}
