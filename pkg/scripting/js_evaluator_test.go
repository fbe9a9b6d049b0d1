package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSEvaluatorEvaluate(t *testing.T) {
	evaluator := NewJSEvaluator()

	tests := []struct {
		name       string
		expression string
		context    map[string]interface{}
		want       interface{}
		wantErr    bool
	}{
		{
			name:       "plain string passes through",
			expression: "hello world",
			context:    map[string]interface{}{},
			want:       "hello world",
		},
		{
			name:       "context variable",
			expression: "${name}",
			context:    map[string]interface{}{"name": "john"},
			want:       "john",
		},
		{
			name:       "string method on context variable",
			expression: "${name.toUpperCase()}",
			context:    map[string]interface{}{"name": "john"},
			want:       "JOHN",
		},
		{
			name:       "nested map access",
			expression: "${input.subject}",
			context: map[string]interface{}{
				"input": map[string]interface{}{"subject": "Weekly report"},
			},
			want: "Weekly report",
		},
		{
			name:       "numeric expression keeps its type",
			expression: "${count * 2}",
			context:    map[string]interface{}{"count": 21},
			want:       float64(42),
		},
		{
			name:       "embedded expression interpolates into text",
			expression: "Hello ${name}, you have ${count} new tasks",
			context:    map[string]interface{}{"name": "Ada", "count": 3},
			want:       "Hello Ada, you have 3 new tasks",
		},
		{
			name:       "invalid expression",
			expression: "${this is not javascript}",
			context:    map[string]interface{}{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tt.expression, tt.context)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSEvaluatorEvaluateInObject(t *testing.T) {
	evaluator := NewJSEvaluator()

	context := map[string]interface{}{
		"input": map[string]interface{}{
			"recipient": "team@example.com",
			"count":     5,
		},
	}

	obj := map[string]interface{}{
		"to":      "${input.recipient}",
		"subject": "Report: ${input.count} items",
		"static":  42,
		"nested": map[string]interface{}{
			"body": "${input.count * 2}",
		},
		"list": []interface{}{"${input.recipient}", "fixed"},
	}

	result, err := evaluator.EvaluateInObject(obj, context)
	require.NoError(t, err)

	assert.Equal(t, "team@example.com", result["to"])
	assert.Equal(t, "Report: 5 items", result["subject"])
	assert.Equal(t, 42, result["static"])

	nested, ok := result["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(10), nested["body"])

	list, ok := result["list"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "team@example.com", list[0])
	assert.Equal(t, "fixed", list[1])
}

func TestJSEvaluatorContextIsolation(t *testing.T) {
	evaluator := NewJSEvaluator()

	// Globals set by one evaluation must not leak into the next
	_, err := evaluator.Evaluate("${secret}", map[string]interface{}{"secret": "s3cr3t"})
	require.NoError(t, err)

	_, err = evaluator.Evaluate("${secret}", map[string]interface{}{})
	assert.Error(t, err)
}
