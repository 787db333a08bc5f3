package workflow

import (
	"fmt"
	"strings"
)

// DuplicateStepError reports a step name used more than once in a composed
// tool.
type DuplicateStepError struct {
	ToolName string
	StepName string
}

// Error implements the error interface.
func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("composed tool %q declares step %q more than once", e.ToolName, e.StepName)
}

// UnknownToolError reports a step whose (server, tool) pair does not
// resolve in the hub's catalog.
type UnknownToolError struct {
	ToolName string
	StepName string
	Server   string
	Tool     string
	Cause    error
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("composed tool %q step %q: tool %q on server %q not found",
		e.ToolName, e.StepName, e.Tool, e.Server)
}

// Unwrap returns the catalog lookup error.
func (e *UnknownToolError) Unwrap() error { return e.Cause }

// CircularDependencyError reports a reference cycle between steps. Path is
// the cycle as discovered by the DFS, ending where it started.
type CircularDependencyError struct {
	ToolName string
	Path     []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("composed tool %q has a circular step dependency: %s",
		e.ToolName, strings.Join(e.Path, " -> "))
}

// ForwardReferenceError reports a reference to a step that appears later
// in the step order (or to the referring step itself).
type ForwardReferenceError struct {
	ToolName string
	StepName string
	Target   string
}

// Error implements the error interface.
func (e *ForwardReferenceError) Error() string {
	return fmt.Sprintf("composed tool %q step %q references step %q, which does not precede it",
		e.ToolName, e.StepName, e.Target)
}

// UnknownReferenceError reports a reference to a step name that does not
// exist in the tool.
type UnknownReferenceError struct {
	ToolName string
	StepName string
	Target   string
}

// Error implements the error interface.
func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("composed tool %q step %q references unknown step %q",
		e.ToolName, e.StepName, e.Target)
}

// SchemaCompatibilityError reports an output reference whose path is not
// compatible with the producing step's declared output.
type SchemaCompatibilityError struct {
	ToolName string
	StepName string
	Target   string
	Path     string
	Reason   string
}

// Error implements the error interface.
func (e *SchemaCompatibilityError) Error() string {
	return fmt.Sprintf("composed tool %q step %q: path %q is not compatible with step %q's output: %s",
		e.ToolName, e.StepName, e.Path, e.Target, e.Reason)
}

// ReferenceUnavailableError reports, at execution time, a reference to a
// step that did not reach success (it failed, was skipped, or never ran).
type ReferenceUnavailableError struct {
	StepName string
	Target   string
	Status   StepStatus
}

// Error implements the error interface.
func (e *ReferenceUnavailableError) Error() string {
	return fmt.Sprintf("step %q references output of step %q, which is %s rather than success",
		e.StepName, e.Target, e.Status)
}

// NotRegisteredError reports an execution request for a name with no
// registered composed tool.
type NotRegisteredError struct {
	ToolName string
}

// Error implements the error interface.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("no composed tool registered under %q", e.ToolName)
}
