// ABOUTME: Math pack: arithmetic helpers used by the agent's decision loop
// ABOUTME: Pure functions, no collaborators

package builtins

import (
	"context"
	"encoding/json"
	"math"

	"github.com/errandhq/errand-gateway/internal/tools"
)

func registerMathPack(registry *tools.Registry) {
	registry.Register(&tools.Descriptor{
		Name:        "add",
		Description: "Add two numbers",
		Params: []tools.Param{
			{Name: "a", Type: tools.TypeFloat, Required: true},
			{Name: "b", Type: tools.TypeFloat, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			return json.Marshal(map[string]float64{
				"sum": floatParam(inv, "a") + floatParam(inv, "b"),
			})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "strings_to_chars_to_int",
		Description: "Convert each character of a string to its code point",
		Params: []tools.Param{
			{Name: "string", Type: tools.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			input := stringParam(inv, "string")
			values := make([]int64, 0, len(input))
			for _, r := range input {
				values = append(values, int64(r))
			}
			return json.Marshal(map[string]any{"values": values})
		},
	})

	registry.Register(&tools.Descriptor{
		Name:        "int_list_to_exponential_sum",
		Description: "Sum e^i over a list of integers",
		Params: []tools.Param{
			{Name: "int_list", Type: tools.TypeList, Required: true},
		},
		Handler: func(ctx context.Context, inv tools.Invocation) (json.RawMessage, error) {
			values, err := intList(listParam(inv, "int_list"))
			if err != nil {
				return nil, err
			}
			var sum float64
			for _, v := range values {
				sum += math.Exp(float64(v))
			}
			return json.Marshal(map[string]float64{"sum": sum})
		},
	})
}
