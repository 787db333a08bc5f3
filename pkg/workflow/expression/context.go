package expression

// BuildContext creates an expression evaluation context for a composed-tool
// execution. Conditions evaluate against a restricted read-only view of the
// invocation's params and the states of already-executed steps:
//
//	{
//	    "params": {"name": "value", ...},
//	    "steps": {
//	        "step_name": {"status": "success", "outputs": {...}},
//	        ...
//	    }
//	}
//
// Param values are also exposed at the top level for convenience, so both
// `params.region` and `region` resolve.
func BuildContext(params, steps map[string]interface{}) map[string]interface{} {
	ctx := make(map[string]interface{})

	if params != nil {
		ctx["params"] = params
	} else {
		ctx["params"] = make(map[string]interface{})
	}

	if steps != nil {
		ctx["steps"] = steps
	} else {
		ctx["steps"] = make(map[string]interface{})
	}

	if p, ok := ctx["params"].(map[string]interface{}); ok {
		for k, v := range p {
			if _, exists := ctx[k]; !exists {
				ctx[k] = v
			}
		}
	}

	return ctx
}

// StepStateConverter defines the interface for converting step states to
// maps. This interface breaks the circular dependency between the
// expression and workflow packages.
type StepStateConverter interface {
	ToMap() map[string]interface{}
}

// BuildContextFromStepStates creates an expression context from typed step
// states. The expression layer remains untyped per architectural decision
// to maintain compatibility with the expr library.
func BuildContextFromStepStates(params map[string]any, stepStates map[string]StepStateConverter) map[string]interface{} {
	steps := make(map[string]interface{})

	for stepName, converter := range stepStates {
		if converter != nil {
			steps[stepName] = converter.ToMap()
		}
	}

	return BuildContext(params, steps)
}
