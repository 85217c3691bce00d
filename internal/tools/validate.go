// ABOUTME: Parameter binding validation against a descriptor's input schema
// ABOUTME: Checks required fields, unknown names, and JSON-decoded value types

package tools

import (
	"fmt"
	"math"
)

// Validate checks parameter bindings against the descriptor's schema.
// Bindings are JSON-decoded values, so numbers arrive as float64.
// All failures wrap ErrInvalidParameters.
func (d *Descriptor) Validate(bindings map[string]any) error {
	byName := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		byName[p.Name] = p
	}

	for name := range bindings {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("%w: unknown parameter %q for tool %s", ErrInvalidParameters, name, d.Name)
		}
	}

	for _, p := range d.Params {
		val, present := bindings[p.Name]
		if !present {
			if p.Required {
				return fmt.Errorf("%w: missing required parameter %q for tool %s", ErrInvalidParameters, p.Name, d.Name)
			}
			continue
		}
		if err := checkType(p, val); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}
	return nil
}

// checkType verifies a single JSON-decoded value against a parameter type.
func checkType(p Param, val any) error {
	switch p.Type {
	case TypeString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("parameter %q: expected string, got %T", p.Name, val)
		}
	case TypeInt:
		f, ok := val.(float64)
		if !ok {
			if _, isInt := val.(int); isInt {
				return nil
			}
			return fmt.Errorf("parameter %q: expected integer, got %T", p.Name, val)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("parameter %q: expected integer, got fractional %v", p.Name, f)
		}
	case TypeFloat:
		switch val.(type) {
		case float64, int:
		default:
			return fmt.Errorf("parameter %q: expected number, got %T", p.Name, val)
		}
	case TypeBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("parameter %q: expected bool, got %T", p.Name, val)
		}
	case TypeList:
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("parameter %q: expected list, got %T", p.Name, val)
		}
	case TypeObject:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("parameter %q: expected object, got %T", p.Name, val)
		}
	default:
		return fmt.Errorf("parameter %q: unsupported type %q in schema", p.Name, p.Type)
	}
	return nil
}
