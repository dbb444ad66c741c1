// Package policy implements the one exit-status knob §7's propagation
// policy calls for: aggregate exit status is non-zero iff any error or
// missing item occurred, and additionally non-zero on warn only when the
// caller requested strict mode. Trimmed from the teacher's much larger
// PolicyConfig/PolicyEnforcer shape (provider allow/block lists, secret
// complexity, output-path restrictions, audit logging) down to the one
// knob this spec actually calls for.
package policy

// Counts tallies per-item outcomes across a plan batch or validation run,
// the shape both internal/planexec.ItemResult and internal/planvalidate.Result
// reduce to before an exit code is decided.
type Counts struct {
	OK      int
	Skipped int
	Missing int
	Error   int
	Warn    int
}

// Add increments the counter matching status, a no-op for any status not
// in the ok/skipped/missing/error/warn vocabulary.
func (c *Counts) Add(status string) {
	switch status {
	case "ok":
		c.OK++
	case "skipped":
		c.Skipped++
	case "missing":
		c.Missing++
	case "error":
		c.Error++
	case "warn":
		c.Warn++
	}
}

// Total returns the number of items tallied.
func (c Counts) Total() int {
	return c.OK + c.Skipped + c.Missing + c.Error + c.Warn
}

// Policy decides exit status from a Counts tally.
type Policy struct {
	// Strict makes a warn-only run fail the overall exit status, per §7
	// ("non-zero on warn only when the caller requested strict mode").
	Strict bool
}

// ExitNonZero reports whether c's outcome should fail the overall run.
func (p Policy) ExitNonZero(c Counts) bool {
	if c.Error > 0 || c.Missing > 0 {
		return true
	}
	if p.Strict && c.Warn > 0 {
		return true
	}
	return false
}
