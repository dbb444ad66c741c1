// Package planexec turns an ordered sequence of secret plans into store
// commands (§4.5), running them strictly serially so that a CA is always
// materialized before anything it signs. Progress is reported through a
// callback rather than any specific output format; the caller owns
// rendering, per design note "callback-driven UI".
package planexec

import "github.com/genesis-deploy/genesis/internal/secretplan"

// EventKind tags a single progress notification emitted while a batch runs.
type EventKind string

const (
	EventWait      EventKind = "wait"
	EventWaitDone  EventKind = "wait-done"
	EventInit      EventKind = "init"
	EventStartItem EventKind = "start-item"
	EventDoneItem  EventKind = "done-item"
	EventEmpty     EventKind = "empty"
	EventAbort     EventKind = "abort"
	EventCompleted EventKind = "completed"
)

// Event is delivered to a Callback. Not every field applies to every Kind:
// Plan/Index/Total apply to start-item/done-item/wait/wait-done (abort
// carries Plan only; init and completed carry Total only); Message holds
// the store command line on wait, the outcome text on done-item and the
// failure on abort; Result applies to done-item.
type Event struct {
	Kind    EventKind
	Plan    *secretplan.Plan
	Index   int
	Total   int
	Result  ItemStatus
	Message string
}

// Callback receives every Event raised during a Run. It is free to
// collapse events into a single summary line or render full verbose
// output; all counters, elapsed time, and error accumulation belong to
// the callback, not the executor.
type Callback func(Event)

// ItemStatus is the outcome of a single plan's command against the store.
type ItemStatus string

const (
	StatusOK      ItemStatus = "ok"
	StatusSkipped ItemStatus = "skipped"
	StatusError   ItemStatus = "error"
)

// ItemResult pairs a plan with the outcome of running action against it.
type ItemResult struct {
	Plan    secretplan.Plan
	Status  ItemStatus
	Message string
}
