// ABOUTME: Typed accessors for validated tool parameters
// ABOUTME: Handlers rely on registry validation having run first

package builtins

import (
	"fmt"

	"github.com/errandhq/errand-gateway/internal/tools"
)

// Parameter values reach handlers after schema validation, so the type
// assertions here only guard against JSON's numeric representation.

func stringParam(inv tools.Invocation, name string) string {
	v, _ := inv.Params[name].(string)
	return v
}

func intParam(inv tools.Invocation, name string, fallback int64) int64 {
	switch v := inv.Params[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return fallback
	}
}

func floatParam(inv tools.Invocation, name string) float64 {
	switch v := inv.Params[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func boolParam(inv tools.Invocation, name string) bool {
	v, _ := inv.Params[name].(bool)
	return v
}

func listParam(inv tools.Invocation, name string) []any {
	v, _ := inv.Params[name].([]any)
	return v
}

// intList converts a validated list parameter to int64 values.
func intList(values []any) ([]int64, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			n, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("element %d is not an integer", i)
			}
			out[i] = n
			continue
		}
		out[i] = int64(f)
	}
	return out, nil
}
