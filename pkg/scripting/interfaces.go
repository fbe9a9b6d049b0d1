// Package scripting evaluates ${...} expressions in step configuration.
package scripting

// ExpressionEvaluator evaluates expressions against an execution context
type ExpressionEvaluator interface {
	// Evaluate processes an expression string with the given context.
	// Strings that are not expressions pass through unchanged.
	Evaluate(expression string, context map[string]interface{}) (interface{}, error)

	// EvaluateInObject processes all expressions in an object,
	// descending into nested maps and arrays
	EvaluateInObject(obj map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error)
}
