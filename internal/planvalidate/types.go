// Package planvalidate checks an already-materialized secret against its
// plan (§4.6): structural parsing, cryptographic consistency, and a
// handful of policy-level checks (validity window, key usage, CA
// consistency). It never mutates the store — only pkg/store and
// internal/planexec write to it.
package planvalidate

import "github.com/genesis-deploy/genesis/internal/secretplan"

// Status is one plan's overall validation outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing"
	StatusError   Status = "error"
	StatusWarn    Status = "warn"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of validating a single plan, with a
// human-readable multi-line message explaining it.
type Result struct {
	Plan    secretplan.Plan
	Status  Status
	Message string
}

// expectedKeys returns the set of store keys a non-error plan of this
// kind must have, per the data model's "Stored Secret" definition.
func expectedKeys(plan secretplan.Plan) []string {
	switch plan.Kind {
	case secretplan.KindX509:
		keys := []string{"certificate", "combined", "key"}
		if plan.IsCA {
			keys = append(keys, "crl", "serial")
		}
		return keys
	case secretplan.KindRSA:
		return []string{"private", "public"}
	case secretplan.KindSSH:
		return []string{"private", "public", "fingerprint"}
	case secretplan.KindDHParams:
		return []string{"dhparam-pem"}
	case secretplan.KindRandom:
		keys := []string{plan.Key}
		if plan.Format != "" {
			keys = append(keys, destinationKey(plan))
		}
		return keys
	default:
		return nil
	}
}

func destinationKey(plan secretplan.Plan) string {
	if plan.Destination != "" {
		if idx := lastColon(plan.Destination); idx >= 0 {
			return plan.Destination[idx+1:]
		}
		return plan.Destination
	}
	return plan.Key + "-" + plan.Format
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
