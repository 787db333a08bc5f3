package workflow

import (
	"github.com/tombee/switchboard/pkg/errors"
)

// CatalogChecker answers whether a (server, tool) pair is currently known.
// The hub's tool catalog satisfies this through a small adapter.
type CatalogChecker interface {
	HasTool(serverName, toolName string) error
}

// Validate checks a composed tool definition before registration: basic
// shape, unique step names, every (server, tool) resolving in the catalog,
// references pointing at earlier output-producing steps with compatible
// paths, and an acyclic reference graph. The first failure is returned.
func Validate(def *ComposedTool, catalog CatalogChecker) error {
	if def.Name == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "composed tool name is required",
			Suggestion: "give the tool a unique, non-empty name",
		}
	}
	if len(def.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "composed tool has no steps",
			Suggestion: "declare at least one step",
		}
	}

	// Step names are unique within the tool; record each step's position
	// for order checks.
	position := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			return &errors.ValidationError{
				Field:      "steps",
				Message:    "every step needs a name",
				Suggestion: "name each step uniquely within the tool",
			}
		}
		if _, seen := position[step.Name]; seen {
			return &DuplicateStepError{ToolName: def.Name, StepName: step.Name}
		}
		position[step.Name] = i
	}

	// Every step's tool resolves in the catalog, as does its rollback's.
	if catalog != nil {
		for _, step := range def.Steps {
			if err := catalog.HasTool(step.Server, step.Tool); err != nil {
				return &UnknownToolError{
					ToolName: def.Name, StepName: step.Name,
					Server: step.Server, Tool: step.Tool, Cause: err,
				}
			}
			if step.Rollback != nil {
				if err := catalog.HasTool(step.Rollback.Server, step.Rollback.Tool); err != nil {
					return &UnknownToolError{
						ToolName: def.Name, StepName: step.Name,
						Server: step.Rollback.Server, Tool: step.Rollback.Tool, Cause: err,
					}
				}
			}
		}
	}

	// References: output refs name an earlier step that declares an
	// output, with a path rooted at that output; condition step refs also
	// point backwards.
	for i, step := range def.Steps {
		for _, value := range step.Input {
			if err := checkRef(def, position, i, step.Name, value, false); err != nil {
				return err
			}
		}
		if step.Rollback != nil {
			// A compensator resolves after its step succeeds, so it may
			// reference the step's own output.
			for _, value := range step.Rollback.Input {
				if err := checkRef(def, position, i, step.Name, value, true); err != nil {
					return err
				}
			}
		}
		if step.Condition != nil && step.Condition.StepName != "" {
			target, ok := position[step.Condition.StepName]
			if !ok {
				return &UnknownReferenceError{ToolName: def.Name, StepName: step.Name, Target: step.Condition.StepName}
			}
			if target >= i {
				return &ForwardReferenceError{ToolName: def.Name, StepName: step.Name, Target: step.Condition.StepName}
			}
		}
	}

	return checkAcyclic(def, position)
}

func checkRef(def *ComposedTool, position map[string]int, stepIndex int, stepName string, value interface{}, allowSelf bool) error {
	ref, isRef := parseParamRef(value)
	if !isRef {
		return nil
	}

	if err := validatePathSyntax(ref.Source.Path); err != nil {
		return &errors.ValidationError{
			Field:      "input",
			Message:    err.Error(),
			Suggestion: "use dotted jq-style paths like repo.name or items[0].id",
		}
	}

	if ref.Source.Kind != SourceOutput {
		return nil
	}

	target := ref.Source.StepName
	targetIndex, ok := position[target]
	if !ok {
		return &UnknownReferenceError{ToolName: def.Name, StepName: stepName, Target: target}
	}
	if targetIndex > stepIndex || (targetIndex == stepIndex && !allowSelf) {
		return &ForwardReferenceError{ToolName: def.Name, StepName: stepName, Target: target}
	}

	producer := def.Steps[targetIndex]
	if producer.Output == "" {
		return &SchemaCompatibilityError{
			ToolName: def.Name, StepName: stepName, Target: target,
			Path: ref.Source.Path, Reason: "referenced step declares no output",
		}
	}
	if ref.Source.Path != "" && firstPathSegment(ref.Source.Path) != producer.Output {
		return &SchemaCompatibilityError{
			ToolName: def.Name, StepName: stepName, Target: target,
			Path: ref.Source.Path, Reason: "path must be rooted at output " + producer.Output,
		}
	}

	return nil
}

// checkAcyclic runs a DFS over the step reference graph with a
// recursion-path set. The earlier order checks already make forward edges
// impossible, but the cycle check is kept independent so a detected cycle
// is reported with the discovered path rather than as a chain of
// order-violation errors.
func checkAcyclic(def *ComposedTool, position map[string]int) error {
	deps := make(map[string][]string, len(def.Steps))
	for _, step := range def.Steps {
		var targets []string
		for _, value := range step.Input {
			if ref, ok := parseParamRef(value); ok && ref.Source.Kind == SourceOutput {
				targets = append(targets, ref.Source.StepName)
			}
		}
		if step.Condition != nil && step.Condition.StepName != "" {
			targets = append(targets, step.Condition.StepName)
		}
		deps[step.Name] = targets
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(def.Steps))

	var path []string
	var visit func(name string) *CircularDependencyError
	visit = func(name string) *CircularDependencyError {
		state[name] = visiting
		path = append(path, name)

		for _, dep := range deps[name] {
			switch state[dep] {
			case visiting:
				// Close the cycle in the reported path.
				cycle := append(append([]string{}, path...), dep)
				return &CircularDependencyError{ToolName: def.Name, Path: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, step := range def.Steps {
		if state[step.Name] == unvisited {
			if err := visit(step.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
