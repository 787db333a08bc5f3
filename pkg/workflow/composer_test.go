package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller records dispatched calls and answers from per-tool handlers.
type fakeCaller struct {
	mu       sync.Mutex
	calls    []fakeCall
	handlers map[string]func(args map[string]interface{}) (interface{}, error)
}

type fakeCall struct {
	Server string
	Tool   string
	Args   map[string]interface{}
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: make(map[string]func(args map[string]interface{}) (interface{}, error))}
}

func (f *fakeCaller) handle(tool string, fn func(args map[string]interface{}) (interface{}, error)) {
	f.handlers[tool] = fn
}

func (f *fakeCaller) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Server: server, Tool: tool, Args: args})
	handler := f.handlers[tool]
	f.mu.Unlock()

	if handler != nil {
		return handler(args)
	}
	return map[string]interface{}{"tool": tool}, nil
}

func (f *fakeCaller) recorded() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeCaller) toolSequence() []string {
	var seq []string
	for _, c := range f.recorded() {
		seq = append(seq, c.Tool)
	}
	return seq
}

func newTestComposer(caller *fakeCaller) *Composer {
	return NewComposer(caller, testCatalog(), nil)
}

func TestRegisterToolValidates(t *testing.T) {
	c := newTestComposer(newFakeCaller())

	require.NoError(t, c.RegisterTool(validDefinition()))

	bad := validDefinition()
	bad.Steps[1].Name = "create"
	assert.Error(t, c.RegisterTool(bad))
}

func TestExecuteUnregisteredTool(t *testing.T) {
	c := newTestComposer(newFakeCaller())

	_, err := c.ExecuteTool(context.Background(), "ghost", nil)
	var notRegistered *NotRegisteredError
	require.ErrorAs(t, err, &notRegistered)
}

func TestExecuteInputSchemaEnforced(t *testing.T) {
	c := newTestComposer(newFakeCaller())

	def := validDefinition()
	def.InputSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"repo": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"repo"},
	}
	require.NoError(t, c.RegisterTool(def))

	_, err := c.ExecuteTool(context.Background(), def.Name, map[string]interface{}{})
	require.Error(t, err, "missing required param must fail before any step runs")
}

func TestExecuteHappyPath(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("create_repo", func(args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"name": args["name"], "url": "https://example.test/" + fmt.Sprint(args["name"])}, nil
	})

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(validDefinition()))

	result, err := c.ExecuteTool(context.Background(), "provision-repo", map[string]interface{}{"repo": "octo/hello"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "provision-repo", result.ToolName)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, StepSuccess, result.StepResults[0].Status)
	assert.Equal(t, StepSuccess, result.StepResults[1].Status)
	assert.Nil(t, result.Rollback)

	// The second step received the first step's output through its ref.
	recorded := caller.recorded()
	require.Len(t, recorded, 2)
	pushed, ok := recorded[1].Args["repo"].(map[string]interface{})
	require.True(t, ok, "output value must flow into the referencing step")
	assert.Equal(t, "octo/hello", pushed["name"])

	// Declared outputs surface in the result.
	assert.Contains(t, result.Outputs, "repo")
}

// Scenario S6: step B fails after step A succeeded; A's compensator (with
// parameters resolved from A's output) is issued exactly once, LIFO.
func TestExecuteRollbackOnStepFailure(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("create_repo", func(args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"name": "octo/hello", "id": 7}, nil
	})
	caller.handle("push_files", func(args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("push rejected")
	})

	def := &ComposedTool{
		Name: "provision-repo",
		Steps: []Step{
			{
				Name: "create", Server: "github", Tool: "create_repo",
				Input:  map[string]interface{}{"name": paramRef("repo")},
				Output: "repo",
				Rollback: &RollbackSpec{
					Server: "github", Tool: "delete_repo",
					Input: map[string]interface{}{"name": outputRef("create", "repo.name")},
				},
			},
			{
				Name: "push", Server: "github", Tool: "push_files",
				Input: map[string]interface{}{"repo": outputRef("create", "repo.name")},
			},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "provision-repo", map[string]interface{}{"repo": "octo/hello"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotNil(t, result.Rollback)
	assert.True(t, result.Rollback.Triggered)
	assert.True(t, result.Rollback.Successful)

	assert.Equal(t, []string{"create_repo", "push_files", "delete_repo"}, caller.toolSequence())

	// The compensator got the value resolved from A's output.
	recorded := caller.recorded()
	assert.Equal(t, "octo/hello", recorded[2].Args["name"])

	// Step statuses in the report.
	assert.Equal(t, StepSuccess, result.StepResults[0].Status)
	assert.Equal(t, StepFailed, result.StepResults[1].Status)
	assert.Contains(t, result.StepResults[1].Error, "push rejected")
}

func TestExecuteRollbackStackDrainsLIFO(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("run_deploy", func(args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("deploy failed")
	})

	def := &ComposedTool{
		Name: "two-compensators",
		Steps: []Step{
			{
				Name: "first", Server: "github", Tool: "create_repo", Output: "a",
				Rollback: &RollbackSpec{Server: "github", Tool: "delete_repo",
					Input: map[string]interface{}{"which": "first"}},
			},
			{
				Name: "second", Server: "github", Tool: "push_files", Output: "b",
				Rollback: &RollbackSpec{Server: "github", Tool: "delete_repo",
					Input: map[string]interface{}{"which": "second"}},
			},
			{Name: "deploy", Server: "ci", Tool: "run_deploy"},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "two-compensators", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)

	recorded := caller.recorded()
	require.Len(t, recorded, 5)
	// Compensators run in reverse capture order.
	assert.Equal(t, "second", recorded[3].Args["which"])
	assert.Equal(t, "first", recorded[4].Args["which"])
}

func TestExecuteCompensatorFailureDoesNotAbortDrain(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("run_deploy", func(args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("deploy failed")
	})
	deleted := 0
	caller.handle("delete_repo", func(args map[string]interface{}) (interface{}, error) {
		deleted++
		if deleted == 1 {
			return nil, errors.New("compensator broken")
		}
		return map[string]interface{}{}, nil
	})

	def := &ComposedTool{
		Name: "messy",
		Steps: []Step{
			{Name: "first", Server: "github", Tool: "create_repo", Output: "a",
				Rollback: &RollbackSpec{Server: "github", Tool: "delete_repo"}},
			{Name: "second", Server: "github", Tool: "push_files", Output: "b",
				Rollback: &RollbackSpec{Server: "github", Tool: "delete_repo"}},
			{Name: "deploy", Server: "ci", Tool: "run_deploy"},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "messy", nil)
	require.NoError(t, err)

	require.NotNil(t, result.Rollback)
	assert.True(t, result.Rollback.Triggered)
	assert.False(t, result.Rollback.Successful)
	assert.Contains(t, result.Rollback.Error, "compensator broken")
	assert.Equal(t, 2, deleted, "drain continues past a failing compensator")
}

func TestExecuteConditionSuccessSkips(t *testing.T) {
	caller := newFakeCaller()
	caller.handle("run_build", func(args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("build failed")
	})

	def := &ComposedTool{
		Name: "conditional-deploy",
		Steps: []Step{
			{Name: "build", Server: "ci", Tool: "run_build", Output: "build"},
			{
				Name: "deploy", Server: "ci", Tool: "run_deploy",
				Condition: &Condition{Type: ConditionSuccess, StepName: "build"},
			},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "conditional-deploy", nil)
	require.NoError(t, err)

	// The first step failing stops the walk; deploy never runs.
	assert.False(t, result.Success)
	assert.Equal(t, []string{"run_build"}, caller.toolSequence())
}

func TestExecuteConditionFailureBranch(t *testing.T) {
	caller := newFakeCaller()

	def := &ComposedTool{
		Name: "notify-on-failure",
		Steps: []Step{
			{Name: "build", Server: "ci", Tool: "run_build", Output: "build"},
			{
				Name: "deploy", Server: "ci", Tool: "run_deploy",
				Condition: &Condition{Type: ConditionFailure, StepName: "build"},
			},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "notify-on-failure", nil)
	require.NoError(t, err)

	// Build succeeded, so the failure-gated step is skipped.
	assert.True(t, result.Success)
	assert.Equal(t, []string{"run_build"}, caller.toolSequence())
	assert.Equal(t, StepSkipped, result.StepResults[1].Status)
}

func TestExecuteExpressionCondition(t *testing.T) {
	caller := newFakeCaller()

	def := &ComposedTool{
		Name: "expression-gate",
		Steps: []Step{
			{
				Name: "deploy", Server: "ci", Tool: "run_deploy",
				Condition: &Condition{Type: ConditionExpression, Expression: `params.env == "production"`},
			},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	result, err := c.ExecuteTool(context.Background(), "expression-gate", map[string]interface{}{"env": "staging"})
	require.NoError(t, err)
	assert.Equal(t, StepSkipped, result.StepResults[0].Status)
	assert.Empty(t, caller.toolSequence())

	result, err = c.ExecuteTool(context.Background(), "expression-gate", map[string]interface{}{"env": "production"})
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, result.StepResults[0].Status)
	assert.Equal(t, []string{"run_deploy"}, caller.toolSequence())
}

// No two executions of the same composed tool share state.
func TestExecutionsAreIsolated(t *testing.T) {
	caller := newFakeCaller()
	count := 0
	caller.handle("create_repo", func(args map[string]interface{}) (interface{}, error) {
		count++
		return map[string]interface{}{"id": count}, nil
	})

	def := &ComposedTool{
		Name: "counter",
		Steps: []Step{
			{Name: "create", Server: "github", Tool: "create_repo", Output: "repo"},
		},
	}

	c := newTestComposer(caller)
	require.NoError(t, c.RegisterTool(def))

	first, err := c.ExecuteTool(context.Background(), "counter", nil)
	require.NoError(t, err)
	second, err := c.ExecuteTool(context.Background(), "counter", nil)
	require.NoError(t, err)

	firstRepo := first.Outputs["repo"].(map[string]interface{})
	secondRepo := second.Outputs["repo"].(map[string]interface{})
	assert.NotEqual(t, firstRepo["id"], secondRepo["id"])
}
