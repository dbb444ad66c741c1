// Package gctx carries the process-wide state the original implementation
// keeps as module-level singletons — the current store, the default
// store, and the store clients resolved so far — as a single explicit
// value instead. The known target list itself lives in internal/registry.
// Every component that would otherwise reach for global state takes a
// *Context argument; tests construct a fresh one per case instead of
// calling a package-level teardown.
package gctx

import (
	"sync"

	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/pkg/execenv"
)

// StoreClient is the subset of pkg/store.Client that gctx needs to know
// about. Declared here rather than importing pkg/store;
// pkg/store.Client satisfies it through its Name method.
type StoreClient interface {
	Name() string
}

// Context bundles the state a single genesis invocation operates under:
// the logger, the command executor seam, the current/default store
// clients, and every store client a run has registered, keyed by name.
type Context struct {
	mu sync.RWMutex

	Log      *logging.Logger
	Executor execenv.CommandExecutor

	currentStore StoreClient
	defaultStore StoreClient
	stores       map[string]StoreClient
}

// New builds a Context. A nil executor defaults to execenv.DefaultExecutor().
func New(log *logging.Logger, executor execenv.CommandExecutor) *Context {
	if executor == nil {
		executor = execenv.DefaultExecutor()
	}
	return &Context{
		Log:      log,
		Executor: executor,
		stores:   make(map[string]StoreClient),
	}
}

// SetCurrentStore records the store client selected for this run.
func (c *Context) SetCurrentStore(s StoreClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStore = s
	if s != nil {
		c.stores[s.Name()] = s
	}
}

// CurrentStore returns the store client selected for this run, if any.
func (c *Context) CurrentStore() StoreClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStore
}

// SetDefaultStore records the fallback store client used when no target
// is specified on the command line.
func (c *Context) SetDefaultStore(s StoreClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultStore = s
	if s != nil {
		c.stores[s.Name()] = s
	}
}

// DefaultStore returns the fallback store client, if any.
func (c *Context) DefaultStore() StoreClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultStore
}

// Store looks up a previously registered store client by name.
func (c *Context) Store(name string) (StoreClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stores[name]
	return s, ok
}

// Clear resets all per-run state. The equivalent of the original
// implementation's clear_all, used between test cases that need a
// pristine Context without constructing a new one.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStore = nil
	c.defaultStore = nil
	c.stores = make(map[string]StoreClient)
}
