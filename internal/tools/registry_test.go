// ABOUTME: Tests for the tool registry: registration policy, resolution, ordering
// ABOUTME: Validates replace-and-warn semantics and concurrent resolution safety

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func testDescriptor(name string, params ...Param) *Descriptor {
	return &Descriptor{
		Name:        name,
		Description: "test tool",
		Params:      params,
		Handler: func(ctx context.Context, inv Invocation) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(testDescriptor("send_email"))

	d, err := r.Resolve("send_email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "send_email" {
		t.Errorf("expected name 'send_email', got %q", d.Name)
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Resolve("missing")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistryReplaceByName(t *testing.T) {
	r := NewRegistry(nil)

	first := testDescriptor("add")
	first.Description = "old"
	r.Register(first)

	second := testDescriptor("add")
	second.Description = "new"
	r.Register(second)

	d, err := r.Resolve("add")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Description != "new" {
		t.Errorf("expected replaced descriptor, got description %q", d.Description)
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("expected 1 descriptor after replace, got %d", got)
	}
}

func TestRegistryRegisterStrict(t *testing.T) {
	r := NewRegistry(nil)

	if err := r.RegisterStrict(testDescriptor("add")); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	err := r.RegisterStrict(testDescriptor("add"))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		r.Register(testDescriptor(n))
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(list))
	}
	for i, n := range names {
		if list[i].Name != n {
			t.Errorf("position %d: expected %q, got %q", i, n, list[i].Name)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(testDescriptor(fmt.Sprintf("tool-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Resolve(fmt.Sprintf("tool-%d", i))
			_ = r.List()
		}(i)
	}
	wg.Wait()

	if got := len(r.List()); got != 20 {
		t.Errorf("expected 20 tools, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	d := testDescriptor("update_sheet",
		Param{Name: "spreadsheet_id", Type: TypeString, Required: true},
		Param{Name: "range_name", Type: TypeString, Required: true},
		Param{Name: "values", Type: TypeList, Required: true},
		Param{Name: "raw", Type: TypeBool},
		Param{Name: "retries", Type: TypeInt},
		Param{Name: "scale", Type: TypeFloat},
		Param{Name: "meta", Type: TypeObject},
	)

	tests := []struct {
		name     string
		bindings map[string]any
		wantErr  bool
	}{
		{
			name: "valid full bindings",
			bindings: map[string]any{
				"spreadsheet_id": "sheet-1",
				"range_name":     "A1:C4",
				"values":         []any{[]any{"a", "b"}},
				"raw":            true,
				"retries":        float64(3),
				"scale":          1.5,
				"meta":           map[string]any{"k": "v"},
			},
		},
		{
			name: "optional params omitted",
			bindings: map[string]any{
				"spreadsheet_id": "sheet-1",
				"range_name":     "A1:C4",
				"values":         []any{},
			},
		},
		{
			name: "missing required",
			bindings: map[string]any{
				"spreadsheet_id": "sheet-1",
			},
			wantErr: true,
		},
		{
			name: "unknown parameter",
			bindings: map[string]any{
				"spreadsheet_id": "sheet-1",
				"range_name":     "A1",
				"values":         []any{},
				"bogus":          1,
			},
			wantErr: true,
		},
		{
			name: "wrong type for string",
			bindings: map[string]any{
				"spreadsheet_id": 42,
				"range_name":     "A1",
				"values":         []any{},
			},
			wantErr: true,
		},
		{
			name: "fractional value for int",
			bindings: map[string]any{
				"spreadsheet_id": "sheet-1",
				"range_name":     "A1",
				"values":         []any{},
				"retries":        1.5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Validate(tt.bindings)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameters) {
					t.Errorf("expected ErrInvalidParameters, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
