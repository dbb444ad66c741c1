package reactor

import (
	"context"
	"fmt"

	"github.com/genesis-deploy/genesis/internal/boshdriver"
	"github.com/genesis-deploy/genesis/internal/hookrunner"
)

// runCheck implements step 1: the kit's check hook, secret checks
// against planvalidate, required-config presence, and stemcell
// resolution, all against the director/store state as of this call.
// export is the already-fetched secrets tree (see secretsExport),
// shared with the redact phase so the store is only exported once.
func (r *Reactor) runCheck(ctx context.Context, opts Options, export map[string]map[string]string) (*CheckReport, error) {
	report := &CheckReport{Stemcells: map[string]string{}}

	if opts.Kit != nil {
		if path, ok := opts.Kit.Hooks["check"]; ok && path != "" {
			report.HookRan = true
			report.HookResult = r.Deps.Hooks.Run(ctx, hookrunner.Invocation{
				Variant: hookrunner.KitHook,
				Path:    path,
				Env:     r.hookEnv(opts, "check", nil),
			})
			if report.HookResult.Err != nil {
				return report, fmt.Errorf("check hook failed: %w", report.HookResult.Err)
			}
		}
	}

	if r.Deps.Validator != nil && len(opts.Plans) > 0 {
		report.SecretResults = r.Deps.Validator.ValidateAll(ctx, opts.Plans, export)
	}

	if opts.Kit != nil && r.Deps.Fetcher != nil {
		for _, req := range opts.Kit.RequiredConfigs {
			if err := r.Deps.Fetcher.Fetch(ctx, req.Type, req.Name); err != nil {
				report.MissingConfigs = append(report.MissingConfigs, req.Type+"/"+req.Name)
				continue
			}
			if req.Name != "*" {
				if _, ok := r.Deps.Fetcher.ConfigFile(req.Type, req.Name); !ok {
					report.MissingConfigs = append(report.MissingConfigs, req.Type+"/"+req.Name)
				}
			}
		}
	}

	if len(opts.StemcellChecks) > 0 && r.Deps.Bosh != nil {
		stemcells, err := r.Deps.Bosh.Stemcells(ctx, opts.Env.Genesis.BoshEnv)
		if err != nil {
			return report, fmt.Errorf("check: listing director stemcells: %w", err)
		}
		for _, sc := range opts.StemcellChecks {
			resolved, err := boshdriver.ResolveStemcellVersion(stemcells, sc.Name, sc.OS, sc.Requested)
			key := fmt.Sprintf("%s/%s/%s", sc.Name, sc.OS, sc.Requested)
			if err != nil {
				report.MissingConfigs = append(report.MissingConfigs, "stemcell:"+key)
				continue
			}
			report.Stemcells[key] = resolved
		}
	}

	if !report.OK() {
		return report, fmt.Errorf("check phase found blocking issues")
	}
	return report, nil
}

// secretsExport fetches the full secrets tree once per Deploy call, for
// both the check phase's validator pass and the redact phase's known-
// secret-value lookup.
func (r *Reactor) secretsExport(ctx context.Context, opts Options) (map[string]map[string]string, error) {
	if r.Deps.Store == nil {
		return nil, nil
	}
	mount := secretsMount(opts)
	export, err := r.Deps.Store.Export(ctx, mount)
	if err != nil {
		return nil, fmt.Errorf("exporting secrets tree at %s: %w", mount, err)
	}
	return export, nil
}

func secretsMount(opts Options) string {
	if opts.Env.Genesis.SecretsMount != "" {
		return opts.Env.Genesis.SecretsMount
	}
	if opts.Env.Genesis.SecretsPath != "" {
		return opts.Env.Genesis.SecretsPath
	}
	return "secret/" + opts.Env.Genesis.Env
}
