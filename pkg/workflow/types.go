// Package workflow implements composed tools: user-declared multi-step
// workflows over the hub's tool calls, with parameter references between
// steps, conditional execution, and compensating rollbacks.
package workflow

import (
	"time"
)

// Param source kinds.
const (
	// SourceParam references a value from the invocation's parameters.
	SourceParam = "param"
	// SourceOutput references a value saved by an earlier step.
	SourceOutput = "output"
)

// ParamSource names where a referenced value comes from.
type ParamSource struct {
	// Kind is "param" or "output".
	Kind string `json:"kind" yaml:"kind"`

	// Path is a dotted path into the source value (e.g. "repo.name").
	// For output references the first segment is the producing step's
	// declared output name.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// StepName names the producing step for output references.
	StepName string `json:"stepName,omitempty" yaml:"step_name,omitempty"`
}

// ParamRef is a step-input value that is resolved at execution time rather
// than passed literally.
type ParamRef struct {
	Source ParamSource `json:"source" yaml:"source"`
}

// ConditionType selects how a step's condition is evaluated.
type ConditionType string

const (
	// ConditionSuccess is true iff the named step reached success.
	ConditionSuccess ConditionType = "success"
	// ConditionFailure is true iff the named step failed.
	ConditionFailure ConditionType = "failure"
	// ConditionExpression evaluates an expression against a read-only
	// view of (params, steps).
	ConditionExpression ConditionType = "expression"
)

// Condition gates a step's execution.
type Condition struct {
	Type       ConditionType `json:"type" yaml:"type"`
	StepName   string        `json:"stepName,omitempty" yaml:"step_name,omitempty"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// RollbackSpec declares the compensating call for a step. Its input may
// contain ParamRefs; they are resolved when the step succeeds, so the
// compensator runs with values as they were at capture time.
type RollbackSpec struct {
	Server string                 `json:"server" yaml:"server"`
	Tool   string                 `json:"tool" yaml:"tool"`
	Input  map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`
}

// Step is one tool call inside a composed tool.
type Step struct {
	// Name is unique within the tool.
	Name string `json:"name" yaml:"name"`

	// Server and Tool name the call; both must resolve in the hub's
	// catalog at registration time.
	Server string `json:"server" yaml:"server"`
	Tool   string `json:"tool" yaml:"tool"`

	// Input maps argument names to literals or ParamRefs.
	Input map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`

	// Output, when set, is the key under which the step's result is saved
	// for later steps to reference.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Condition, when set, gates execution; a false condition marks the
	// step skipped.
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Rollback, when set, is pushed onto the rollback stack after the
	// step succeeds.
	Rollback *RollbackSpec `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// ComposedTool is a user-declared workflow of tool calls.
type ComposedTool struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`

	// Steps execute in declaration order.
	Steps []Step `json:"steps" yaml:"steps"`

	// InputSchema validates the invocation's params (JSON-Schema subset).
	InputSchema map[string]interface{} `json:"inputSchema,omitempty" yaml:"input_schema,omitempty"`

	// OutputSchema, when set, validates the final outputs map.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty" yaml:"output_schema,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StepStatus is a step's execution state.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepState is the transient per-execution state of one step.
type StepState struct {
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"startTime,omitempty"`
	EndTime   *time.Time             `json:"endTime,omitempty"`
	Outputs   map[string]interface{} `json:"outputs,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ToMap converts the state to an untyped map for expression evaluation.
// This implements expression.StepStateConverter.
func (s *StepState) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"status": string(s.Status),
	}
	if len(s.Outputs) > 0 {
		m["outputs"] = s.Outputs
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	return m
}

// ExecutionStatus is a composed-tool execution's overall state.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// rollbackEntry is one captured compensating call with its parameters
// already resolved.
type rollbackEntry struct {
	stepName string
	server   string
	tool     string
	input    map[string]interface{}
}

// ExecutionState is the transient state of one composed-tool invocation.
// Executions never share state; each invocation gets a fresh one.
type ExecutionState struct {
	RunID       string
	Status      ExecutionStatus
	CurrentStep string

	Params map[string]interface{}
	Steps  map[string]*StepState

	rollbackStack []rollbackEntry

	StartTime time.Time
	EndTime   time.Time
}

// stepsView renders the per-step states as the untyped map conditions and
// references evaluate against.
func (e *ExecutionState) stepsView() map[string]interface{} {
	view := make(map[string]interface{}, len(e.Steps))
	for name, state := range e.Steps {
		view[name] = state.ToMap()
	}
	return view
}

// StepResult reports one step's outcome in the final result.
type StepResult struct {
	Name       string      `json:"name"`
	Status     StepStatus  `json:"status"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"durationMs,omitempty"`
}

// RollbackInfo reports whether compensators ran and how they fared.
type RollbackInfo struct {
	Triggered  bool   `json:"triggered"`
	Successful bool   `json:"successful"`
	Error      string `json:"error,omitempty"`
}

// ComposedResult is the final shape returned by an execution.
type ComposedResult struct {
	Success     bool                   `json:"success"`
	ToolName    string                 `json:"toolName"`
	StepResults []StepResult           `json:"stepResults"`
	Outputs     map[string]interface{} `json:"outputs"`
	DurationMs  int64                  `json:"durationMs"`
	Rollback    *RollbackInfo          `json:"rollbackInfo,omitempty"`
}
