// Package expression provides condition expression evaluation for composed-tool steps.
//
// It uses the expr-lang/expr library to evaluate boolean expressions that
// determine whether composed-tool steps should execute. Expressions support:
//
//   - Variable access: params.name, steps.step_id.content
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in array (built-in operator)
//   - Custom functions: has(array, element), includes(array, element)
//
// Example expressions:
//
//	"security" in params.personas
//	has(params.personas, "security")
//	params.mode == "strict" && params.count > 0
//	!params.disabled
//
// The evaluator caches compiled expressions for performance.
//
// Note: The expr library uses "contains" as a string operator (for substring matching),
// so use "in" or "has()" for array membership checks.
package expression
