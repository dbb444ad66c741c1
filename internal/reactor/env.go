package reactor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// hookEnv builds the documented environment (§6 "Hook environment
// contract") for a single hook or reaction invocation. extra is merged
// over the common set and wins on key collision, for the
// reaction-only/post-deploy-only additions.
func (r *Reactor) hookEnv(opts Options, stage string, extra map[string]string) map[string]string {
	env := map[string]string{
		"GENESIS_ROOT":               r.Deps.GenesisRoot,
		"GENESIS_ENVIRONMENT":        opts.Env.Genesis.Env,
		"GENESIS_CALL_BIN":           opts.Call.Bin,
		"GENESIS_CALL_ENV":           opts.Call.Env,
		"GENESIS_CALL_PREFIX":        opts.Call.Prefix,
		"GENESIS_CALL_FULL":          opts.Call.Full,
		"GENESIS_MIN_VERSION":        opts.Env.Genesis.MinVersion,
		"GENESIS_TARGET_VAULT":       opts.TargetVaultURL,
		"GENESIS_VERIFY_VAULT":       boolEnv(opts.VerifyVault),
		"GENESIS_ROOT_CA_PATH":       opts.Env.Genesis.RootCAPath,
		"GENESIS_REQUESTED_FEATURES": strings.Join(opts.Features, " "),
	}

	if opts.Kit != nil {
		env["GENESIS_TYPE"] = opts.Kit.Name
		env["GENESIS_KIT_NAME"] = opts.Kit.Name
		env["GENESIS_KIT_VERSION"] = opts.Kit.Version
	}

	if params, err := json.Marshal(opts.Env.Params); err == nil {
		env["GENESIS_ENVIRONMENT_PARAMS"] = string(params)
	}

	applyMountTriple(env, "SECRETS", opts.Env.Genesis.SecretsMount, opts.Env.Genesis.SecretsPath, opts.Env.Genesis.Env)
	applyMountTriple(env, "EXODUS", opts.Env.Genesis.ExodusMount, "", opts.Env.Genesis.Env)
	applyMountTriple(env, "CI", opts.Env.Genesis.CIMount, "", opts.Env.Genesis.Env)

	if opts.Kit != nil {
		env["GENESIS_SECRETS_SLUG"] = fmt.Sprintf("%s/%s", opts.Env.Genesis.Env, opts.Kit.Name)
	} else {
		env["GENESIS_SECRETS_SLUG"] = opts.Env.Genesis.Env
	}

	env["CREDHUB_SERVER"] = opts.CredHub.Server
	env["CREDHUB_CLIENT"] = opts.CredHub.Client
	env["CREDHUB_SECRET"] = opts.CredHub.Secret
	env["CREDHUB_CA_CERT"] = opts.CredHub.CACert

	if opts.Env.Genesis.UseCreateEnv {
		// Cleared, not omitted: buildEnvironment deletes a key mapped to
		// "" from the merged set, so any BOSH_* the genesis process
		// itself inherited does not leak into the hook's environment.
		env["BOSH_ALIAS"] = ""
		env["BOSH_ENVIRONMENT"] = ""
		env["BOSH_DEPLOYMENT"] = ""
		env["BOSH_CA_CERT"] = ""
		env["BOSH_CLIENT"] = ""
		env["BOSH_CLIENT_SECRET"] = ""
	} else {
		env["BOSH_ALIAS"] = opts.Env.Genesis.BoshEnv
		env["BOSH_ENVIRONMENT"] = opts.Env.Genesis.BoshEnv
		env["BOSH_DEPLOYMENT"] = opts.Deployment
		env["BOSH_CA_CERT"] = opts.BoshCreds.CACert
		env["BOSH_CLIENT"] = opts.BoshCreds.Client
		env["BOSH_CLIENT_SECRET"] = opts.BoshCreds.ClientSecret
	}

	if r.Deps.Fetcher != nil {
		for k, v := range r.Deps.Fetcher.EnvVars() {
			env[k] = v
		}
	}

	for k, v := range extra {
		env[k] = v
	}
	return env
}

// applyMountTriple fills the GENESIS_<PREFIX>_{MOUNT,BASE,MOUNT_OVERRIDE}
// trio: MOUNT is the explicit override if given, else a <prefix>/<env>
// default; MOUNT_OVERRIDE records whether the kit/environment file
// actually overrode it.
func applyMountTriple(env map[string]string, prefix, mount, base, envName string) {
	override := mount != ""
	if mount == "" {
		mount = strings.ToLower(prefix) + "/" + envName
	}
	if base == "" {
		base = mount
	}
	env["GENESIS_"+prefix+"_MOUNT"] = mount
	env["GENESIS_"+prefix+"_BASE"] = base
	env["GENESIS_"+prefix+"_MOUNT_OVERRIDE"] = boolEnv(override)
}

func boolEnv(b bool) string {
	return strconv.FormatBool(b)
}

// deployOptionsJSON renders the BOSH-facing deploy options for
// GENESIS_DEPLOY_OPTIONS, the reaction-visible record of exactly what
// was passed to the BOSH driver.
func deployOptionsJSON(opts Options) string {
	payload := map[string]interface{}{
		"deployment": opts.Deployment,
		"dry_run":    opts.DryRun,
		"extra_args": opts.ExtraDeployArgs,
		"create_env": opts.Env.Genesis.UseCreateEnv,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(out)
}
