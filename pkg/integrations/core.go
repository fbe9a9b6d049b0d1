package integrations

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// CoreDispatcher implements the built-in "core" integration. Its actions
// need no connection: log, delay, and transform.
type CoreDispatcher struct{}

// NewCoreDispatcher creates a new core dispatcher
func NewCoreDispatcher() *CoreDispatcher {
	return &CoreDispatcher{}
}

// Name returns the integration name used in step definitions
func (d *CoreDispatcher) Name() string {
	return "core"
}

// Dispatch executes a core action
func (d *CoreDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	switch req.Action {
	case "log":
		return d.log(req)
	case "delay":
		return d.delay(ctx, req)
	case "transform":
		return d.transform(req)
	default:
		return nil, fmt.Errorf("%w: core.%s", ErrUnknownAction, req.Action)
	}
}

// log echoes a message into the step result
func (d *CoreDispatcher) log(req Request) (map[string]interface{}, error) {
	message, _ := req.Config["message"].(string)

	return map[string]interface{}{
		"message": message,
	}, nil
}

// delay pauses for the configured number of seconds, honoring
// cancellation
func (d *CoreDispatcher) delay(ctx context.Context, req Request) (map[string]interface{}, error) {
	seconds, ok := toFloat(req.Config["seconds"])
	if !ok || seconds < 0 {
		return nil, fmt.Errorf("delay requires a non-negative \"seconds\" value")
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]interface{}{
		"delayed_seconds": seconds,
	}, nil
}

// transform runs a JavaScript snippet over the step input. The script
// sees the input as a global named "data" and its completion value
// becomes the step result.
func (d *CoreDispatcher) transform(req Request) (map[string]interface{}, error) {
	script, ok := req.Config["script"].(string)
	if !ok || script == "" {
		return nil, fmt.Errorf("transform requires a \"script\" string")
	}

	vm := goja.New()
	if err := vm.Set("data", req.Config["data"]); err != nil {
		return nil, fmt.Errorf("failed to set transform input: %w", err)
	}

	value, err := vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("transform script failed: %w", err)
	}

	exported := value.Export()
	if result, ok := exported.(map[string]interface{}); ok {
		return result, nil
	}

	return map[string]interface{}{
		"result": exported,
	}, nil
}

// toFloat coerces the numeric types JSON decoding and expression
// evaluation produce
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
