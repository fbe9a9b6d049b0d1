package scripting

import (
	"fmt"
	"strings"

	"github.com/robertkrimen/otto"
)

// JSEvaluator implements ExpressionEvaluator with a JavaScript engine.
// Expressions have access to every key of the execution context as a
// global, so "${input.subject}" or "${steps[0].result}" both work.
type JSEvaluator struct{}

// NewJSEvaluator creates a new JSEvaluator
func NewJSEvaluator() *JSEvaluator {
	return &JSEvaluator{}
}

// Evaluate processes an expression string with the given context.
// A string that is exactly one ${...} expression keeps the evaluated
// type; a string with embedded expressions is interpolated into text.
func (e *JSEvaluator) Evaluate(expression string, context map[string]interface{}) (interface{}, error) {
	if strings.HasPrefix(expression, "${") && strings.HasSuffix(expression, "}") &&
		strings.Count(expression, "${") == 1 {
		return e.run(expression[2:len(expression)-1], context)
	}

	if !strings.Contains(expression, "${") {
		return expression, nil
	}

	// Interpolate embedded expressions into the surrounding text
	var out strings.Builder
	rest := expression
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			out.WriteString(rest)
			break
		}

		out.WriteString(rest[:start])
		value, err := e.run(rest[start+2:start+end], context)
		if err != nil {
			return nil, err
		}
		out.WriteString(fmt.Sprintf("%v", value))
		rest = rest[start+end+1:]
	}

	return out.String(), nil
}

// run executes a single expression in a fresh VM. A new VM per call
// keeps one step's globals from leaking into the next.
func (e *JSEvaluator) run(expr string, context map[string]interface{}) (interface{}, error) {
	vm := otto.New()
	for key, value := range context {
		if err := vm.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set context variable %q: %w", key, err)
		}
	}

	result, err := vm.Run(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expr, err)
	}

	goValue, err := result.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to convert result of %q: %w", expr, err)
	}

	return goValue, nil
}

// EvaluateInObject processes all expressions in an object
func (e *JSEvaluator) EvaluateInObject(obj map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(obj))

	for key, value := range obj {
		evaluated, err := e.evaluateValue(value, context)
		if err != nil {
			return nil, err
		}
		result[key] = evaluated
	}

	return result, nil
}

func (e *JSEvaluator) evaluateValue(value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.Evaluate(v, context)
	case map[string]interface{}:
		return e.EvaluateInObject(v, context)
	case []interface{}:
		evaluated := make([]interface{}, len(v))
		for i, item := range v {
			itemValue, err := e.evaluateValue(item, context)
			if err != nil {
				return nil, err
			}
			evaluated[i] = itemValue
		}
		return evaluated, nil
	default:
		return value, nil
	}
}
