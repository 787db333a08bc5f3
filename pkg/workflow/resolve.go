package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// parseParamRef detects a ParamRef encoded in a step input value. Values
// arrive as untyped maps when definitions are decoded from JSON or YAML,
// so both the typed struct and the raw {"source": {"kind": ...}} shape are
// recognized. Anything else is a literal.
func parseParamRef(v interface{}) (*ParamRef, bool) {
	switch ref := v.(type) {
	case ParamRef:
		return &ref, true
	case *ParamRef:
		return ref, true
	case map[string]interface{}:
		rawSource, ok := ref["source"]
		if !ok || len(ref) != 1 {
			return nil, false
		}
		source, ok := rawSource.(map[string]interface{})
		if !ok {
			return nil, false
		}
		kind, _ := source["kind"].(string)
		if kind != SourceParam && kind != SourceOutput {
			return nil, false
		}
		parsed := &ParamRef{Source: ParamSource{Kind: kind}}
		if path, ok := source["path"].(string); ok {
			parsed.Source.Path = path
		}
		if stepName, ok := source["stepName"].(string); ok {
			parsed.Source.StepName = stepName
		}
		return parsed, true
	default:
		return nil, false
	}
}

// resolvePath extracts the value at a dotted path (jq syntax, e.g.
// "repo.name" or "items[0].id") from a value. An empty path returns the
// value itself.
func resolvePath(value interface{}, path string) (interface{}, error) {
	if path == "" {
		return value, nil
	}

	query, err := gojq.Parse("." + path)
	if err != nil {
		return nil, fmt.Errorf("workflow: bad reference path %q: %w", path, err)
	}

	iter := query.Run(normalizeForJq(value))
	result, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("workflow: path %q produced no value", path)
	}
	if err, isErr := result.(error); isErr {
		return nil, fmt.Errorf("workflow: resolving path %q: %w", path, err)
	}
	return result, nil
}

// validatePathSyntax checks a reference path parses as a jq query without
// running it; used at registration time.
func validatePathSyntax(path string) error {
	if path == "" {
		return nil
	}
	if _, err := gojq.Parse("." + path); err != nil {
		return fmt.Errorf("bad path %q: %w", path, err)
	}
	return nil
}

// firstPathSegment returns the leading identifier of a dotted path
// ("repo.name" -> "repo", "items[0]" -> "items").
func firstPathSegment(path string) string {
	seg := path
	if i := strings.IndexAny(seg, ".["); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

// normalizeForJq converts arbitrary Go values into the map/slice/scalar
// shapes gojq accepts, round-tripping through JSON when needed.
func normalizeForJq(v interface{}) interface{} {
	switch v.(type) {
	case nil, bool, string, float64, int, map[string]interface{}, []interface{}:
		return v
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return v
	}
	return normalized
}

// resolveInput substitutes every ParamRef in a step's input mapping with
// its referenced value. A reference to a step that did not reach success
// fails with ReferenceUnavailableError.
func (e *ExecutionState) resolveInput(stepName string, input map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(input))
	for key, value := range input {
		ref, isRef := parseParamRef(value)
		if !isRef {
			resolved[key] = value
			continue
		}

		v, err := e.resolveRef(stepName, ref)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}
	return resolved, nil
}

func (e *ExecutionState) resolveRef(stepName string, ref *ParamRef) (interface{}, error) {
	switch ref.Source.Kind {
	case SourceParam:
		return resolvePath(e.Params, ref.Source.Path)

	case SourceOutput:
		target := ref.Source.StepName
		state, ok := e.Steps[target]
		if !ok {
			return nil, &UnknownReferenceError{StepName: stepName, Target: target}
		}
		if state.Status != StepSuccess {
			return nil, &ReferenceUnavailableError{StepName: stepName, Target: target, Status: state.Status}
		}
		return resolvePath(state.Outputs, ref.Source.Path)

	default:
		return nil, fmt.Errorf("workflow: unknown reference kind %q", ref.Source.Kind)
	}
}
