// Package errors implements genesis's error taxonomy: a small set of
// structured error types carrying a message, an optional remediation
// suggestion, and the wrapped cause, plus the dependency/store/plan/
// cycle/deploy variants the orchestration pipeline needs on top of the
// generic user-facing ones.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents an environment file or kit metadata problem
// (taxonomy #1: configuration error).
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// DependencyError represents a missing or incompatible external binary
// (taxonomy #2: dependency error), fatal at startup.
type DependencyError struct {
	Binary        string
	MinVersion    string
	FoundVersion  string
	Message       string
	Suggestion    string
}

func (e DependencyError) Error() string {
	msg := fmt.Sprintf("dependency error: %s", e.Binary)
	if e.MinVersion != "" {
		if e.FoundVersion != "" {
			msg += fmt.Sprintf(" (found %s, need >= %s)", e.FoundVersion, e.MinVersion)
		} else {
			msg += fmt.Sprintf(" (need >= %s)", e.MinVersion)
		}
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// StoreError represents an unreachable, unauthenticated or sealed
// credentials store (taxonomy #3), surfaced with remedial instructions.
type StoreError struct {
	Target     string
	Status     string
	Message    string
	Suggestion string
}

func (e StoreError) Error() string {
	msg := fmt.Sprintf("store error (%s)", e.Status)
	if e.Target != "" {
		msg += fmt.Sprintf(" on target '%s'", e.Target)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// PlanError represents a single secret plan's error variant surfaced as
// a terminal failure (taxonomy #4). It is also the shape used in-line
// when a plan record itself carries an `error` field.
type PlanError struct {
	Path    string
	Message string
}

func (e PlanError) Error() string {
	return fmt.Sprintf("plan error at '%s': %s", e.Path, e.Message)
}

// CommandError represents a non-zero subprocess exit during plan
// execution (taxonomy #5); a single occurrence aborts the batch.
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CycleError represents a signing cycle or ambiguous CA detected by the
// plan orderer (taxonomy #6). Affected plan paths are recorded so the
// caller can downgrade them to error plans and continue the run.
type CycleError struct {
	Paths   []string
	Message string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("cycle error among %v: %s", e.Paths, e.Message)
}

// DeployError represents a non-zero exit from the BOSH driver (taxonomy
// #7). PostDeployRan records whether post-deploy reactions still ran.
type DeployError struct {
	ExitCode      int
	PostDeployRan bool
	Message       string
}

func (e DeployError) Error() string {
	msg := fmt.Sprintf("deploy error (exit code: %d)", e.ExitCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// DependencyToolError enhances an external-tool error with context,
// analogous to the teacher's per-provider suggestion tables, retargeted
// at genesis's own subprocess dependencies.
func DependencyToolError(tool string, operation string, err error) error {
	suggestion := getToolSuggestion(tool, err)

	return UserError{
		Message:    fmt.Sprintf("%s error during %s", tool, operation),
		Suggestion: suggestion,
		Err:        err,
	}
}

// getToolSuggestion returns helpful suggestions based on the external
// tool genesis shelled out to and the error it returned.
func getToolSuggestion(tool string, err error) string {
	errStr := err.Error()

	switch tool {
	case "safe":
		if strings.Contains(errStr, "not logged in") || strings.Contains(errStr, "unauthenticated") {
			return "Run 'safe target' and authenticate against the credentials store"
		}
		if strings.Contains(errStr, "sealed") {
			return "The vault is sealed; ask an operator to unseal it before retrying"
		}
		if strings.Contains(errStr, "Not found") || strings.Contains(errStr, "no such path") {
			return "Verify the secret path exists. Use 'safe paths <prefix>' to search"
		}
		if strings.Contains(errStr, "command not found") {
			return "Install the safe CLI: https://github.com/starkandwayne/safe"
		}

	case "bosh":
		if strings.Contains(errStr, "Not authenticated") || strings.Contains(errStr, "authorization") {
			return "Run 'bosh log-in' against the target director"
		}
		if strings.Contains(errStr, "Timed out") {
			return "Check the director URL and network connectivity"
		}
		if strings.Contains(errStr, "command not found") {
			return "Install the bosh CLI: https://bosh.io/docs/cli-v2-install/"
		}

	case "spruce":
		if strings.Contains(errStr, "command not found") {
			return "Install spruce: https://github.com/geofffranks/spruce"
		}
		if strings.Contains(errStr, "Unable to resolve") {
			return "One or more (( ... )) operators could not be resolved; check the referenced path exists"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and target configuration"
	}

	return ""
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions.
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"safe":   "Install safe: https://github.com/starkandwayne/safe",
		"bosh":   "Install the BOSH CLI: https://bosh.io/docs/cli-v2-install/",
		"bosh2":  "Install the BOSH CLI: https://bosh.io/docs/cli-v2-install/",
		"spruce": "Install spruce: https://github.com/geofffranks/spruce",
		"git":    "Install Git from https://git-scm.com/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users.
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	switch err.(type) {
	case UserError, ConfigError, CommandError, DependencyError, StoreError, PlanError, CycleError, DeployError:
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "json:") {
		return ConfigError{
			Message:    "Invalid JSON format",
			Suggestion: "Validate your JSON at https://jsonlint.com/",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
