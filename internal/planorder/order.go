// Package planorder topologically sorts x509 plans by their signing
// relationship, per §4.4. It operates on an arena of plans keyed by
// path plus a signer_path -> [plan_path] reverse index rather than a
// pointer graph, per design note 9 ("cyclic reference between plans and
// their signers").
package planorder

import (
	"github.com/genesis-deploy/genesis/internal/secretplan"
)

// Order classifies, assigns signers to, and topologically sorts plans.
// Non-x509 plans pass through untouched, appended after the x509 run in
// the order they were given (the caller is expected to have already
// path-sorted them, as secretplan.Parse does).
func Order(plans []secretplan.Plan, rootCAPath string) []secretplan.Plan {
	arena := map[string]secretplan.Plan{}
	var x509Paths []string
	var passthrough []secretplan.Plan

	for _, p := range plans {
		if p.Kind == secretplan.KindX509 {
			arena[p.Path] = p
			x509Paths = append(x509Paths, p.Path)
		} else {
			passthrough = append(passthrough, p)
		}
	}

	assignSigners(arena, x509Paths, rootCAPath)

	cyclic := detectCycles(arena, x509Paths)

	reverse := map[string][]string{}
	for _, path := range x509Paths {
		if cyclic[path] {
			continue
		}
		signer := arena[path].SignedBy
		if signer == path {
			// A plan that signs itself is its own entry point, not a
			// dependent filed under its own path — reverse[path] is only
			// ever walked as a consequence of reverse[""] reaching path
			// first, so filing it there would make it unreachable.
			signer = ""
		} else if _, knownSigner := arena[signer]; !knownSigner {
			// Unsigned, or signed by something outside the local plan
			// set (root_ca_path) — either way it's an entry point for
			// the walk, not a dependent of another plan in this batch.
			signer = ""
		}
		reverse[signer] = append(reverse[signer], path)
	}

	var ordered []secretplan.Plan
	emitted := map[string]bool{}

	for _, path := range x509Paths {
		if !cyclic[path] {
			continue
		}
		p := arena[path]
		p.Kind = secretplan.KindError
		p.ErrorMessage = "Cyclical CA signage detected"
		ordered = append(ordered, p)
		emitted[path] = true
	}

	var emit func(path string)
	emit = func(path string) {
		if emitted[path] {
			return
		}
		plan := arena[path]
		if plan.SignedBy == path {
			plan.SelfSigned = secretplan.SelfSignedExplicit
			plan.IsCA = true
		}
		ordered = append(ordered, plan)
		emitted[path] = true

		for _, dependent := range reverse[path] {
			if dependent != path {
				emit(dependent)
			}
		}
	}

	for _, path := range reverse[""] {
		emit(path)
	}

	for _, path := range x509Paths {
		if !emitted[path] {
			plan := arena[path]
			plan.Kind = secretplan.KindError
			plan.ErrorMessage = "Could not find associated signing CA"
			ordered = append(ordered, plan)
			emitted[path] = true
		}
	}

	return append(ordered, passthrough...)
}

// detectCycles follows each plan's SignedBy chain and flags every plan
// on a cycle. Run ahead of the topological emit so cyclic plans are
// downgraded to an error variant exactly once rather than tripping a
// recursion guard mid-walk.
func detectCycles(arena map[string]secretplan.Plan, paths []string) map[string]bool {
	flagged := map[string]bool{}

	for _, start := range paths {
		if flagged[start] {
			continue
		}

		chain := []string{}
		indexOf := map[string]int{}
		cur := start

		for {
			plan, ok := arena[cur]
			if !ok || flagged[cur] {
				break
			}
			if idx, seen := indexOf[cur]; seen {
				for _, p := range chain[idx:] {
					flagged[p] = true
				}
				break
			}
			indexOf[cur] = len(chain)
			chain = append(chain, cur)

			next := plan.SignedBy
			if next == "" || next == cur {
				break
			}
			cur = next
		}
	}

	return flagged
}

// assignSigners implements the base_path grouping rules from §4.4:
// exactly one CA in a group signs its siblings; a canonical
// "<base_path>/ca" CA wins when multiple CAs exist; otherwise the group
// is marked ambiguous. Plans still unsigned afterward get root_ca_path
// or are marked self-signed.
func assignSigners(arena map[string]secretplan.Plan, paths []string, rootCAPath string) {
	groups := map[string][]string{}
	for _, path := range paths {
		p := arena[path]
		groups[p.BasePath] = append(groups[p.BasePath], path)
	}

	for basePath, groupPaths := range groups {
		var cas []string
		for _, path := range groupPaths {
			if arena[path].IsCA {
				cas = append(cas, path)
			}
		}

		var signer string
		ambiguous := false
		switch {
		case len(cas) == 1:
			signer = cas[0]
		case len(cas) > 1:
			canonical := basePath + "/ca"
			found := false
			for _, ca := range cas {
				if ca == canonical {
					signer = ca
					found = true
				}
			}
			if !found {
				ambiguous = true
			}
		}

		for _, path := range groupPaths {
			p := arena[path]
			if p.IsCA && p.Path == signer {
				continue // the CA itself is not signed by the group
			}
			if p.SignedBy != "" {
				continue // already explicit
			}
			if ambiguous {
				p.Kind = secretplan.KindError
				p.ErrorMessage = "Ambiguous or missing signing CA"
			} else if signer != "" {
				p.SignedBy = signer
			}
			arena[path] = p
		}
	}

	// A plan still unsigned here gets root_ca_path or self-signs, with no
	// exception for a group's own signing CA: a top-level CA that signs
	// its siblings but has no signer of its own is exactly the case this
	// rule exists for (§4.4 "plans still unsigned after the above").
	for _, path := range paths {
		p := arena[path]
		if p.Kind == secretplan.KindError {
			continue
		}
		if p.SignedBy == "" {
			if rootCAPath != "" {
				p.SignedBy = rootCAPath
				p.SignedByAbsPath = true
			} else {
				p.SelfSigned = secretplan.SelfSignedImplicit
			}
			arena[path] = p
		}
	}
}
