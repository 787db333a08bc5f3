package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	ilog "github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/workflow/expression"
	"github.com/tombee/switchboard/pkg/workflow/schema"
)

// ToolCaller dispatches one tool call. The hub facade satisfies this; the
// composer never talks to transports directly.
type ToolCaller interface {
	CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (interface{}, error)
}

// Composer registers composed tools and executes them. Registration
// validates the definition against the hub's catalog; execution walks the
// steps in declaration order with per-execution state.
type Composer struct {
	caller    ToolCaller
	catalog   CatalogChecker
	validator schema.Validator
	exprEval  *expression.Evaluator
	logger    *slog.Logger

	mu    sync.RWMutex
	tools map[string]*ComposedTool
}

// NewComposer creates a Composer over a tool caller and catalog.
func NewComposer(caller ToolCaller, catalog CatalogChecker, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		caller:    caller,
		catalog:   catalog,
		validator: schema.NewValidator(),
		exprEval:  expression.New(),
		logger:    logger,
		tools:     make(map[string]*ComposedTool),
	}
}

// RegisterTool validates and stores a composed tool. Registering a name
// twice replaces the earlier definition.
func (c *Composer) RegisterTool(def *ComposedTool) error {
	if def == nil {
		return &errors.ValidationError{Field: "definition", Message: "definition is nil"}
	}
	if err := Validate(def, c.catalog); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[def.Name] = def

	c.logger.Info("composed tool registered",
		slog.String(ilog.ComposedToolKey, def.Name),
		slog.Int("steps", len(def.Steps)))
	return nil
}

// Tool returns a registered definition by name.
func (c *Composer) Tool(name string) (*ComposedTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.tools[name]
	return def, ok
}

// ListTools returns the registered definitions.
func (c *Composer) ListTools() []*ComposedTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ComposedTool, 0, len(c.tools))
	for _, def := range c.tools {
		out = append(out, def)
	}
	return out
}

// ExecuteTool runs a registered composed tool with the given params. The
// result reports per-step status, the collected outputs, and, after a step
// failure, the rollback outcome. Validation failures return an error
// without executing anything.
func (c *Composer) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (*ComposedResult, error) {
	c.mu.RLock()
	def, ok := c.tools[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &NotRegisteredError{ToolName: name}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if len(def.InputSchema) > 0 {
		if err := c.validator.Validate(def.InputSchema, params); err != nil {
			return nil, &errors.ValidationError{
				Field:      "params",
				Message:    fmt.Sprintf("params do not match %s's input schema: %v", name, err),
				Suggestion: "check the composed tool's inputSchema for required fields and types",
			}
		}
	}

	exec := &ExecutionState{
		RunID:     uuid.NewString(),
		Status:    ExecutionRunning,
		Params:    params,
		Steps:     make(map[string]*StepState, len(def.Steps)),
		StartTime: time.Now(),
	}
	for _, step := range def.Steps {
		exec.Steps[step.Name] = &StepState{Status: StepPending}
	}

	logger := ilog.WithRunContext(c.logger, exec.RunID, def.Name)
	logger.Info("composed tool execution started", slog.Int("steps", len(def.Steps)))

	failed := c.runSteps(ctx, def, exec, logger)

	var rollbackInfo *RollbackInfo
	if failed {
		exec.Status = ExecutionFailed
		rollbackInfo = c.drainRollbacks(ctx, exec, logger)
	} else {
		exec.Status = ExecutionSuccess
	}
	exec.EndTime = time.Now()

	result := c.buildResult(def, exec, rollbackInfo)

	if result.Success && len(def.OutputSchema) > 0 {
		if err := c.validator.Validate(def.OutputSchema, result.Outputs); err != nil {
			logger.Warn("outputs do not match declared output schema", "error", err)
		}
	}

	logger.Info("composed tool execution finished",
		slog.Bool("success", result.Success),
		slog.Int64(ilog.DurationKey, result.DurationMs))
	return result, nil
}

// runSteps walks the steps in declaration order, returning true when a
// step failed and execution stopped early.
func (c *Composer) runSteps(ctx context.Context, def *ComposedTool, exec *ExecutionState, logger *slog.Logger) bool {
	for i := range def.Steps {
		step := &def.Steps[i]
		state := exec.Steps[step.Name]
		exec.CurrentStep = step.Name
		stepLogger := ilog.WithStepContext(logger, exec.RunID, step.Name)

		if step.Condition != nil {
			ok, err := c.evaluateCondition(step, exec)
			if err != nil {
				state.Status = StepFailed
				state.Error = err.Error()
				stepLogger.Error("condition evaluation failed", "error", err)
				return true
			}
			if !ok {
				state.Status = StepSkipped
				stepLogger.Info("step skipped by condition")
				continue
			}
		}

		input, err := exec.resolveInput(step.Name, step.Input)
		if err != nil {
			state.Status = StepFailed
			state.Error = err.Error()
			stepLogger.Error("input resolution failed", "error", err)
			return true
		}

		now := time.Now()
		state.Status = StepRunning
		state.StartTime = &now

		result, err := c.caller.CallTool(ctx, step.Server, step.Tool, input)

		end := time.Now()
		state.EndTime = &end

		if err != nil {
			state.Status = StepFailed
			state.Error = err.Error()
			stepLogger.Error("step failed",
				slog.String(ilog.ServerKey, step.Server),
				slog.String(ilog.ToolKey, step.Tool),
				"error", err)
			return true
		}

		state.Status = StepSuccess
		if step.Output != "" {
			state.Outputs = map[string]interface{}{step.Output: result}
		}

		// Capture the compensator with its parameters resolved now, so a
		// later failure can undo this step even if inputs shift.
		if step.Rollback != nil {
			rollbackInput, err := exec.resolveInput(step.Name, step.Rollback.Input)
			if err != nil {
				state.Status = StepFailed
				state.Error = fmt.Sprintf("resolving rollback parameters: %v", err)
				stepLogger.Error("rollback parameter resolution failed", "error", err)
				return true
			}
			exec.rollbackStack = append(exec.rollbackStack, rollbackEntry{
				stepName: step.Name,
				server:   step.Rollback.Server,
				tool:     step.Rollback.Tool,
				input:    rollbackInput,
			})
		}

		stepLogger.Info("step succeeded",
			slog.String(ilog.ServerKey, step.Server),
			slog.String(ilog.ToolKey, step.Tool),
			slog.Int64(ilog.DurationKey, end.Sub(now).Milliseconds()))
	}

	return false
}

// evaluateCondition decides whether a step runs.
func (c *Composer) evaluateCondition(step *Step, exec *ExecutionState) (bool, error) {
	cond := step.Condition
	switch cond.Type {
	case ConditionSuccess, ConditionFailure:
		target, ok := exec.Steps[cond.StepName]
		if !ok {
			return false, &UnknownReferenceError{StepName: step.Name, Target: cond.StepName}
		}
		if target.Status == StepPending || target.Status == StepRunning {
			return false, &ForwardReferenceError{StepName: step.Name, Target: cond.StepName}
		}
		if cond.Type == ConditionSuccess {
			return target.Status == StepSuccess, nil
		}
		return target.Status == StepFailed, nil

	case ConditionExpression:
		ctx := expression.BuildContext(exec.Params, exec.stepsView())
		return c.exprEval.Evaluate(cond.Expression, ctx)

	default:
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("unknown condition type %q", cond.Type),
			Suggestion: "use success, failure, or expression",
		}
	}
}

// drainRollbacks unwinds the rollback stack LIFO. A failing compensator is
// logged and reported but does not abort the drain.
func (c *Composer) drainRollbacks(ctx context.Context, exec *ExecutionState, logger *slog.Logger) *RollbackInfo {
	info := &RollbackInfo{Triggered: len(exec.rollbackStack) > 0, Successful: true}

	for i := len(exec.rollbackStack) - 1; i >= 0; i-- {
		entry := exec.rollbackStack[i]
		logger.Info("running compensator",
			slog.String(ilog.StepIDKey, entry.stepName),
			slog.String(ilog.ServerKey, entry.server),
			slog.String(ilog.ToolKey, entry.tool))

		if _, err := c.caller.CallTool(ctx, entry.server, entry.tool, entry.input); err != nil {
			info.Successful = false
			if info.Error == "" {
				info.Error = err.Error()
			}
			logger.Error("compensator failed",
				slog.String(ilog.StepIDKey, entry.stepName), "error", err)
		}
	}

	return info
}

func (c *Composer) buildResult(def *ComposedTool, exec *ExecutionState, rollbackInfo *RollbackInfo) *ComposedResult {
	result := &ComposedResult{
		Success:    exec.Status == ExecutionSuccess,
		ToolName:   def.Name,
		Outputs:    make(map[string]interface{}),
		DurationMs: exec.EndTime.Sub(exec.StartTime).Milliseconds(),
		Rollback:   rollbackInfo,
	}

	for _, step := range def.Steps {
		state := exec.Steps[step.Name]
		sr := StepResult{
			Name:   step.Name,
			Status: state.Status,
			Error:  state.Error,
		}
		if state.StartTime != nil && state.EndTime != nil {
			sr.DurationMs = state.EndTime.Sub(*state.StartTime).Milliseconds()
		}
		if step.Output != "" && state.Outputs != nil {
			sr.Result = state.Outputs[step.Output]
			result.Outputs[step.Output] = state.Outputs[step.Output]
		}
		result.StepResults = append(result.StepResults, sr)
	}

	return result
}
