package planvalidate

import (
	"context"
	"fmt"
	"strings"

	"github.com/genesis-deploy/genesis/internal/secretplan"
)

// ChainVerifier is the fallback path for an x509 signing-chain check when
// the certificate pair doesn't carry a usable Authority/Subject Key ID:
// first a multi-hop `x509 verify-chain` call built by walking signed_by
// across the plan set, then a single-hop `x509 validate --signed-by` call
// against the store if that fails. Matches pkg/store.Client.Query's shape.
type ChainVerifier interface {
	Query(ctx context.Context, args ...string) (string, string, error)
}

// Validator checks materialized secrets against their plans.
type Validator struct {
	chain ChainVerifier
}

// New constructs a Validator. chain may be nil; the chain-verify fallback
// is then skipped in favor of a warning.
func New(chain ChainVerifier) *Validator {
	return &Validator{chain: chain}
}

// ValidateAll validates every plan in plans against export, the full
// pre-loaded store tree (path -> key -> value) as returned by
// pkg/store.Client.Export.
func (v *Validator) ValidateAll(ctx context.Context, plans []secretplan.Plan, export map[string]map[string]string) []Result {
	byPath := make(map[string]secretplan.Plan, len(plans))
	for _, p := range plans {
		byPath[p.Path] = p
	}

	results := make([]Result, 0, len(plans))
	for _, plan := range plans {
		results = append(results, v.validateOne(ctx, plan, byPath, export))
	}
	return results
}

func (v *Validator) validateOne(ctx context.Context, plan secretplan.Plan, byPath map[string]secretplan.Plan, export map[string]map[string]string) Result {
	if plan.Kind == secretplan.KindError {
		return Result{Plan: plan, Status: StatusError, Message: plan.ErrorMessage}
	}

	stored, ok := export[plan.Path]
	if !ok || len(stored) == 0 {
		return Result{Plan: plan, Status: StatusMissing, Message: fmt.Sprintf("%s: no secret stored", plan.Path)}
	}

	missing := missingKeys(plan, stored)
	if len(missing) > 0 {
		return Result{
			Plan:    plan,
			Status:  StatusMissing,
			Message: fmt.Sprintf("%s: missing key(s) %s", plan.Path, strings.Join(missing, ", ")),
		}
	}

	switch plan.Kind {
	case secretplan.KindX509:
		return v.validateX509(ctx, plan, byPath, stored, export)
	case secretplan.KindRSA:
		return validateRSA(plan, stored)
	case secretplan.KindSSH:
		return validateSSH(plan, stored)
	case secretplan.KindDHParams:
		return validateDHParam(plan, stored)
	case secretplan.KindRandom:
		return validateRandom(plan, stored)
	default:
		return Result{Plan: plan, Status: StatusSkipped, Message: "unrecognized plan kind"}
	}
}

func missingKeys(plan secretplan.Plan, stored map[string]string) []string {
	var missing []string
	for _, key := range expectedKeys(plan) {
		if v, ok := stored[key]; !ok || v == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ok is a small helper so per-type validators can build a multi-line
// success message out of individually-reported checks.
func ok(plan secretplan.Plan, lines ...string) Result {
	return Result{Plan: plan, Status: StatusOK, Message: strings.Join(lines, "\n")}
}

func warn(plan secretplan.Plan, lines ...string) Result {
	return Result{Plan: plan, Status: StatusWarn, Message: strings.Join(lines, "\n")}
}

func fail(plan secretplan.Plan, lines ...string) Result {
	return Result{Plan: plan, Status: StatusError, Message: strings.Join(lines, "\n")}
}
