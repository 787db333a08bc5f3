package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCatalog is a CatalogChecker over a fixed tool set.
type mapCatalog map[string]bool

func (m mapCatalog) HasTool(server, tool string) error {
	if m[server+"/"+tool] {
		return nil
	}
	return fmt.Errorf("tool %q not found on server %q", tool, server)
}

func testCatalog() mapCatalog {
	return mapCatalog{
		"github/create_repo": true,
		"github/push_files":  true,
		"github/delete_repo": true,
		"ci/run_build":       true,
		"ci/run_deploy":      true,
	}
}

func paramRef(path string) map[string]interface{} {
	return map[string]interface{}{
		"source": map[string]interface{}{"kind": "param", "path": path},
	}
}

func outputRef(stepName, path string) map[string]interface{} {
	return map[string]interface{}{
		"source": map[string]interface{}{"kind": "output", "stepName": stepName, "path": path},
	}
}

func validDefinition() *ComposedTool {
	return &ComposedTool{
		Name: "provision-repo",
		Steps: []Step{
			{
				Name: "create", Server: "github", Tool: "create_repo",
				Input:  map[string]interface{}{"name": paramRef("repo")},
				Output: "repo",
				Rollback: &RollbackSpec{
					Server: "github", Tool: "delete_repo",
					Input: map[string]interface{}{"name": paramRef("repo")},
				},
			},
			{
				Name: "push", Server: "github", Tool: "push_files",
				Input: map[string]interface{}{"repo": outputRef("create", "repo")},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, Validate(validDefinition(), testCatalog()))
}

func TestValidateRequiresName(t *testing.T) {
	def := validDefinition()
	def.Name = ""
	assert.Error(t, Validate(def, testCatalog()))
}

func TestValidateRequiresSteps(t *testing.T) {
	def := &ComposedTool{Name: "empty"}
	assert.Error(t, Validate(def, testCatalog()))
}

func TestValidateDuplicateStepNames(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Name = "create"

	err := Validate(def, testCatalog())
	var dup *DuplicateStepError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "create", dup.StepName)
}

func TestValidateUnknownCatalogTool(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Tool = "not_a_tool"

	err := Validate(def, testCatalog())
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "push", unknown.StepName)
}

func TestValidateRollbackToolChecked(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Rollback.Tool = "not_a_tool"

	err := Validate(def, testCatalog())
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
}

func TestValidateUnknownOutputReference(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Input["repo"] = outputRef("ghost", "repo")

	err := Validate(def, testCatalog())
	var unknown *UnknownReferenceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Target)
}

// Invariant: every output reference names a step that appears earlier in
// the step order; self-references are forward references.
func TestValidateForwardReference(t *testing.T) {
	def := &ComposedTool{
		Name: "backwards",
		Steps: []Step{
			{
				Name: "push", Server: "github", Tool: "push_files",
				Input: map[string]interface{}{"repo": outputRef("create", "repo")},
			},
			{
				Name: "create", Server: "github", Tool: "create_repo",
				Output: "repo",
			},
		},
	}

	err := Validate(def, testCatalog())
	var forward *ForwardReferenceError
	require.ErrorAs(t, err, &forward)
	assert.Equal(t, "push", forward.StepName)
	assert.Equal(t, "create", forward.Target)
}

func TestValidateSelfReference(t *testing.T) {
	def := &ComposedTool{
		Name: "narcissus",
		Steps: []Step{
			{
				Name: "create", Server: "github", Tool: "create_repo",
				Output: "repo",
				Input:  map[string]interface{}{"name": outputRef("create", "repo")},
			},
		},
	}

	err := Validate(def, testCatalog())
	var forward *ForwardReferenceError
	require.ErrorAs(t, err, &forward)
}

func TestValidateConditionForwardReference(t *testing.T) {
	def := &ComposedTool{
		Name: "clairvoyant",
		Steps: []Step{
			{
				Name: "deploy", Server: "ci", Tool: "run_deploy",
				Condition: &Condition{Type: ConditionSuccess, StepName: "build"},
			},
			{Name: "build", Server: "ci", Tool: "run_build"},
		},
	}

	err := Validate(def, testCatalog())
	var forward *ForwardReferenceError
	require.ErrorAs(t, err, &forward)
}

func TestValidateReferenceToStepWithoutOutput(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Output = ""

	err := Validate(def, testCatalog())
	var compat *SchemaCompatibilityError
	require.ErrorAs(t, err, &compat)
}

func TestValidatePathMustRootAtDeclaredOutput(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Input["repo"] = outputRef("create", "somethingelse.name")

	err := Validate(def, testCatalog())
	var compat *SchemaCompatibilityError
	require.ErrorAs(t, err, &compat)
	assert.Contains(t, compat.Reason, "rooted at output")
}

func TestValidateBadPathSyntax(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Input["repo"] = outputRef("create", "repo..[")

	assert.Error(t, Validate(def, testCatalog()))
}

// The cycle check reports the discovered path. Forward-order checks make
// cycles unreachable through Validate's earlier passes, so exercise the
// DFS directly.
func TestCheckAcyclicReportsPath(t *testing.T) {
	def := &ComposedTool{
		Name: "loopy",
		Steps: []Step{
			{Name: "a", Server: "s", Tool: "t", Output: "a",
				Input: map[string]interface{}{"x": outputRef("b", "b")}},
			{Name: "b", Server: "s", Tool: "t", Output: "b",
				Input: map[string]interface{}{"x": outputRef("a", "a")}},
		},
	}

	position := map[string]int{"a": 0, "b": 1}
	err := checkAcyclic(def, position)
	var circular *CircularDependencyError
	require.ErrorAs(t, err, &circular)
	require.NotEmpty(t, circular.Path)
	// The path closes where it started.
	assert.Equal(t, circular.Path[0], circular.Path[len(circular.Path)-1])
}

func TestValidateWithoutCatalogSkipsLookup(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Tool = "anything_goes"
	require.NoError(t, Validate(def, nil))
}
