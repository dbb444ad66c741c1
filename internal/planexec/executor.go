package planexec

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/genesis-deploy/genesis/internal/secretplan"
)

// Action is one of the four batch operations the executor can run.
type Action string

const (
	ActionAdd      Action = "add"
	ActionRecreate Action = "recreate"
	ActionRenew    Action = "renew"
	ActionRemove   Action = "remove"
)

const (
	defaultCAValidity    = "10y"
	defaultLeafValidity  = "1y"
)

var defaultLeafUsage = []string{"server_auth", "client_auth"}
var defaultCAUsage = []string{"server_auth", "client_auth", "crl_sign", "key_cert_sign"}

var (
	skippedPattern = regexp.MustCompile(`(?i)refusing to .* already present`)
	renewedPattern = regexp.MustCompile(`(?i)Renewed x509 cert.*expiry set to (.+)`)
)

// Querier is the subset of the Store Client the executor drives commands
// through. It matches pkg/store.Client.Query.
type Querier interface {
	Query(ctx context.Context, args ...string) (string, string, error)
}

// Executor runs a plan batch against a store, strictly serially, emitting
// progress through a Callback.
type Executor struct {
	store Querier
	log   *logging.Logger
}

// New constructs an Executor bound to store.
func New(store Querier, log *logging.Logger) *Executor {
	return &Executor{store: store, log: log}
}

// Run executes action against every plan in order, calling cb for every
// lifecycle event. A non-zero exit from any command aborts the remaining
// batch immediately (§5: "even the Plan Executor runs strictly serially");
// results already collected are still returned alongside the error.
func (e *Executor) Run(ctx context.Context, plans []secretplan.Plan, action Action, cb Callback) ([]ItemResult, error) {
	if cb == nil {
		cb = func(Event) {}
	}

	if len(plans) == 0 {
		cb(Event{Kind: EventEmpty})
		return nil, nil
	}

	cb(Event{Kind: EventInit, Total: len(plans)})

	results := make([]ItemResult, 0, len(plans))

	for i, plan := range plans {
		p := plan
		cb(Event{Kind: EventStartItem, Plan: &p, Index: i, Total: len(plans)})

		result, abort, err := e.runOne(ctx, p, action, cb, i, len(plans))
		results = append(results, result)
		recordItem(result.Status)

		cb(Event{Kind: EventDoneItem, Plan: &p, Index: i, Total: len(plans), Result: result.Status, Message: result.Message})

		if abort {
			recordAbort()
			cb(Event{Kind: EventAbort, Plan: &p, Message: result.Message})
			return results, err
		}
	}

	cb(Event{Kind: EventCompleted, Total: len(plans)})
	return results, nil
}

// runOne dispatches a single plan to its kind-specific command builder,
// issues the command (unless the builder reports the combination is a
// no-op), and interprets the result. Every subprocess call is bracketed
// with wait/wait-done, so for a plan that resolves to more than one
// store command (e.g. removing a formatted random value, which also
// removes its formatted copy) a callback can show progress across the
// calls without mistaking the second for a second item.
func (e *Executor) runOne(ctx context.Context, plan secretplan.Plan, action Action, cb Callback, index, total int) (ItemResult, bool, error) {
	if plan.Kind == secretplan.KindError {
		return ItemResult{Plan: plan, Status: StatusError, Message: plan.ErrorMessage}, false, nil
	}

	cmds, skipReason := buildCommands(plan, action)
	if skipReason != "" {
		return ItemResult{Plan: plan, Status: StatusSkipped, Message: skipReason}, false, nil
	}
	if len(cmds) == 0 {
		return ItemResult{Plan: plan, Status: StatusOK}, false, nil
	}

	p := plan
	var lastOut string
	for _, args := range cmds {
		cb(Event{Kind: EventWait, Plan: &p, Index: index, Total: total, Message: strings.Join(args, " ")})
		out, stderr, err := e.store.Query(ctx, args...)
		cb(Event{Kind: EventWaitDone, Plan: &p, Index: index, Total: total})
		lastOut = out
		if err != nil {
			msg := strings.TrimSpace(stderr)
			if msg == "" {
				msg = strings.TrimSpace(out)
			}
			wrapped := genesiserrors.CommandError{Command: "safe " + strings.Join(args, " "), Message: msg}
			return ItemResult{Plan: plan, Status: StatusError, Message: wrapped.Error()}, true, wrapped
		}
	}

	status, message := interpretOutput(lastOut, action)
	return ItemResult{Plan: plan, Status: status, Message: message}, false, nil
}

// interpretOutput classifies a command's stdout per §4.5's line-matching
// rules. Called only for a zero-exit command; a non-zero exit is always
// an error handled by the caller before this runs.
func interpretOutput(out string, action Action) (ItemStatus, string) {
	trimmed := strings.TrimSpace(out)

	if skippedPattern.MatchString(trimmed) {
		return StatusSkipped, trimmed
	}
	if action == ActionRenew {
		if m := renewedPattern.FindStringSubmatch(trimmed); m != nil {
			return StatusOK, "expiry set to " + strings.TrimSpace(m[1])
		}
	}
	if trimmed == "" {
		return StatusOK, ""
	}
	return StatusError, trimmed
}

// buildCommands returns the sequence of store commands for plan under
// action, or a non-empty skipReason when the (kind, action) combination
// is defined to be a no-op (e.g. renew on a non-x509 plan).
func buildCommands(plan secretplan.Plan, action Action) ([][]string, string) {
	switch plan.Kind {
	case secretplan.KindX509:
		return buildX509Commands(plan, action), ""
	case secretplan.KindRSA, secretplan.KindSSH:
		return buildKeypairCommands(plan, action)
	case secretplan.KindDHParams:
		return buildDHParamCommands(plan, action)
	case secretplan.KindRandom:
		return buildRandomCommands(plan, action)
	default:
		return nil, ""
	}
}

func buildX509Commands(plan secretplan.Plan, action Action) [][]string {
	switch action {
	case ActionAdd, ActionRecreate:
		args := []string{"x509", "issue", plan.Path, "--ttl", validityFor(plan)}
		if plan.IsCA {
			args = append(args, "--ca")
		}
		for _, name := range namesFor(plan) {
			args = append(args, "--name", name)
		}
		args = append(args, "--key-usage", strings.Join(usageFor(plan), ","))
		if plan.SignedBy != "" && plan.SignedBy != plan.Path {
			args = append(args, "--signed-by", plan.SignedBy)
		}
		if action == ActionAdd || plan.Fixed {
			args = append(args, "--no-clobber")
		}
		return [][]string{args}
	case ActionRenew:
		return [][]string{{"x509", "renew", plan.Path, "--ttl", validityFor(plan)}}
	case ActionRemove:
		return [][]string{{"rm", "-f", plan.Path}}
	default:
		return nil
	}
}

func buildKeypairCommands(plan secretplan.Plan, action Action) ([][]string, string) {
	binary := "rsa"
	if plan.Kind == secretplan.KindSSH {
		binary = "ssh"
	}
	switch action {
	case ActionAdd, ActionRecreate:
		args := []string{binary, fmt.Sprintf("%d", plan.Size), plan.Path}
		if action == ActionAdd || plan.Fixed {
			args = append(args, "--no-clobber")
		}
		return [][]string{args}, ""
	case ActionRenew:
		return nil, "renew not supported"
	case ActionRemove:
		return [][]string{{"rm", "-f", plan.Path}}, ""
	default:
		return nil, ""
	}
}

func buildDHParamCommands(plan secretplan.Plan, action Action) ([][]string, string) {
	switch action {
	case ActionAdd, ActionRecreate:
		args := []string{"dhparam", fmt.Sprintf("%d", plan.Size), plan.Path}
		if action == ActionAdd || plan.Fixed {
			args = append(args, "--no-clobber")
		}
		return [][]string{args}, ""
	case ActionRenew:
		return nil, "renew not supported"
	case ActionRemove:
		return [][]string{{"rm", "-f", plan.Path}}, ""
	default:
		return nil, ""
	}
}

func buildRandomCommands(plan secretplan.Plan, action Action) ([][]string, string) {
	switch action {
	case ActionAdd, ActionRecreate:
		args := []string{"gen", fmt.Sprintf("%d", plan.Size)}
		if plan.ValidChars != "" {
			args = append(args, "--policy", plan.ValidChars)
		}
		args = append(args, plan.Path, plan.Key)
		if plan.Format != "" {
			destPath, destKey := splitDestination(plan)
			args = append(args, "--", "fmt", plan.Format, plan.Path, plan.Key, destPath, destKey)
		}
		if action == ActionAdd || plan.Fixed {
			args = append(args, "--no-clobber")
		}
		return [][]string{args}, ""
	case ActionRenew:
		return nil, "renew not supported"
	case ActionRemove:
		cmds := [][]string{{"rm", "-f", plan.Path + ":" + plan.Key}}
		if plan.Format != "" {
			destPath, destKey := splitDestination(plan)
			cmds = append(cmds, []string{"rm", "-f", destPath + ":" + destKey})
		}
		return cmds, ""
	default:
		return nil, ""
	}
}

// splitDestination resolves a random plan's formatted-output location: an
// explicit "path:key" Destination, or the same path under "<key>-<format>"
// when Destination was left blank.
func splitDestination(plan secretplan.Plan) (string, string) {
	if plan.Destination == "" {
		return plan.Path, plan.Key + "-" + plan.Format
	}
	if idx := strings.Index(plan.Destination, ":"); idx >= 0 {
		return plan.Destination[:idx], plan.Destination[idx+1:]
	}
	return plan.Path, plan.Destination
}

func validityFor(plan secretplan.Plan) string {
	if plan.ValidFor != "" {
		return plan.ValidFor
	}
	if plan.IsCA {
		return defaultCAValidity
	}
	return defaultLeafValidity
}

func usageFor(plan secretplan.Plan) []string {
	if len(plan.Usage) > 0 {
		return plan.Usage
	}
	if plan.IsCA {
		return defaultCAUsage
	}
	return defaultLeafUsage
}

// namesFor returns plan's SAN list, synthesizing a CN for a nameless CA
// matching ca.n\d{9}.<base_path>.
func namesFor(plan secretplan.Plan) []string {
	if len(plan.Names) > 0 {
		return plan.Names
	}
	if plan.IsCA {
		return []string{synthesizeCACN(plan.BasePath)}
	}
	return nil
}

func synthesizeCACN(basePath string) string {
	return fmt.Sprintf("ca.n%09d.%s", randomNineDigits(), basePath)
}

func randomNineDigits() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return 0
	}
	return n.Int64()
}
