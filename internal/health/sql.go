// Package health implements the manifest-declared database reachability
// probe the Reactor's check phase (§4.8 step 1) runs before a deploy
// proceeds: "verify required configs exist" is read broadly here to also
// cover a kit-declared datastore DSN, ported from the teacher's
// rotation/health SQL checker and repointed at genesis's own check
// pipeline instead of a standing rotation monitor.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Drivers registered for their side effect on sql.Open; genesis never
	// imports provider-specific types beyond the DSN string a manifest
	// supplies.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Config controls which SQL checks run and their thresholds.
type Config struct {
	PingEnabled            bool
	QueryLatencyEnabled    bool
	QueryLatencyThreshold  time.Duration
	ConnectionPoolEnabled  bool
	ConnectionPoolWarnPct  int
	MaxConnections         int
}

// DefaultConfig mirrors the teacher's defaults.
func DefaultConfig() Config {
	return Config{
		PingEnabled:           true,
		QueryLatencyEnabled:   true,
		ConnectionPoolEnabled: true,
		QueryLatencyThreshold: 500 * time.Millisecond,
		ConnectionPoolWarnPct: 80,
		MaxConnections:        100,
	}
}

// Pinger is the interface a real *sql.DB (or a go-sqlmock double)
// satisfies, so the checker never requires a live database in tests.
type Pinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// Result is the outcome of one database reachability check.
type Result struct {
	Healthy  bool
	Message  string
	Duration time.Duration
	Metadata map[string]interface{}
}

// Checker probes one manifest-declared database connection.
type Checker struct {
	Name   string
	Driver string // "mysql" or "postgres"
	DSN    string
	Config Config

	db Pinger
}

// NewChecker constructs a Checker for a named datastore. The connection
// is opened lazily on the first Check call.
func NewChecker(name, driver, dsn string, cfg Config) *Checker {
	return &Checker{Name: name, Driver: driver, DSN: dsn, Config: cfg}
}

// SetPinger overrides the database connection, for tests backed by
// github.com/DATA-DOG/go-sqlmock.
func (c *Checker) SetPinger(db Pinger) {
	c.db = db
}

func (c *Checker) ensureOpen() error {
	if c.db != nil {
		return nil
	}
	conn, err := sql.Open(c.Driver, c.DSN)
	if err != nil {
		return fmt.Errorf("health: opening %s connection for %q: %w", c.Driver, c.Name, err)
	}
	c.db = conn
	return nil
}

// Check runs the configured probes against the database and reports a
// single pass/fail result with metadata about ping latency and pool
// utilization.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{Healthy: true, Metadata: map[string]interface{}{}}

	if err := c.ensureOpen(); err != nil {
		result.Healthy = false
		result.Message = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	if !c.Config.PingEnabled && !c.Config.QueryLatencyEnabled && !c.Config.ConnectionPoolEnabled {
		result.Message = "no checks enabled, assuming healthy"
		result.Duration = time.Since(start)
		return result, nil
	}

	var messages []string

	if c.Config.PingEnabled {
		pingStart := time.Now()
		if err := c.db.PingContext(ctx); err != nil {
			result.Healthy = false
			messages = append(messages, fmt.Sprintf("ping failed: %v", err))
		} else {
			latency := time.Since(pingStart)
			result.Metadata["ping_latency_ms"] = latency.Milliseconds()
			if c.Config.QueryLatencyEnabled && latency > c.Config.QueryLatencyThreshold {
				result.Healthy = false
				messages = append(messages, fmt.Sprintf("query latency %v exceeds threshold %v", latency, c.Config.QueryLatencyThreshold))
			}
		}
	}

	if c.Config.ConnectionPoolEnabled {
		stats := c.db.Stats()
		result.Metadata["open_connections"] = stats.OpenConnections
		result.Metadata["in_use_connections"] = stats.InUse

		maxConns := c.Config.MaxConnections
		if stats.MaxOpenConnections > 0 {
			maxConns = stats.MaxOpenConnections
		}
		if maxConns > 0 {
			usagePct := (stats.InUse * 100) / maxConns
			switch {
			case stats.InUse >= maxConns:
				result.Healthy = false
				messages = append(messages, fmt.Sprintf("connection pool exhausted: %d/%d", stats.InUse, maxConns))
			case usagePct >= c.Config.ConnectionPoolWarnPct:
				messages = append(messages, fmt.Sprintf("connection pool at %d%% usage", usagePct))
			}
		}
	}

	result.Duration = time.Since(start)
	if len(messages) > 0 {
		result.Message = fmt.Sprintf("%v", messages)
	} else if result.Healthy {
		result.Message = "all checks passed"
	}
	return result, nil
}
