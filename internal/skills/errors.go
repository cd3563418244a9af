package skills

import (
	"fmt"
	"strings"
)

// ErrorCategory is the machine-readable classification attached to tool
// execution failures surfaced back to the model.
type ErrorCategory string

const (
	CategoryNotFound         ErrorCategory = "not_found"
	CategoryMissingParameter ErrorCategory = "missing_parameter"
	CategoryExecution        ErrorCategory = "execution"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryCancelled        ErrorCategory = "cancelled"
)

// LoadError reports a skill that could not be loaded. It is fatal to the
// affected skill only; discovery of other skills continues.
type LoadError struct {
	Skill string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load skill %q: %v", e.Skill, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CompileError reports a bad tool declaration: missing or duplicate
// execution strategy, duplicate parameter, unresolved locator. A compile
// error fails the owning skill's entire compile.
type CompileError struct {
	Tool string
	Err  error
}

func (e *CompileError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("compile: %v", e.Err)
	}
	return fmt.Sprintf("compile tool %q: %v", e.Tool, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// ValidationError reports arguments that fail a tool's schema. It is
// surfaced to the model as a tool result; the conversation continues.
type ValidationError struct {
	Tool   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %q: %s", e.Tool, strings.Join(e.Issues, "; "))
}

// ExecutionError reports a tool invocation that failed at runtime: the
// implementation returned an error or panicked, timed out, or the requested
// tool does not exist. Like ValidationError it becomes result content.
type ExecutionError struct {
	Tool     string
	Category ErrorCategory
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %q (%s): %v", e.Tool, e.Category, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ExhaustedError reports that the conversation loop hit its iteration cap
// without producing a final answer. It goes to the orchestrator's caller,
// never to the model.
type ExhaustedError struct {
	Iterations int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("conversation exhausted after %d iterations without a final answer", e.Iterations)
}
