// ABOUTME: Thread-safe registry mapping tool names to capability descriptors
// ABOUTME: Registration is idempotent by name; default policy is replace-and-warn

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownTool indicates the requested tool is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDuplicateTool indicates a strict registration hit an existing name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// ErrInvalidParameters indicates parameter bindings did not match the
// descriptor's input schema.
var ErrInvalidParameters = errors.New("invalid parameters")

// ParamType enumerates the supported parameter types.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
	TypeList   ParamType = "list"
	TypeObject ParamType = "object"
)

// Param is one typed parameter in a tool's input schema.
type Param struct {
	Name     string
	Type     ParamType
	Required bool
}

// Invocation carries everything a handler needs for one tool execution.
// AccessToken is empty for tools with no credential scope.
type Invocation struct {
	ID          string
	SessionID   string
	Params      map[string]any
	AccessToken string
}

// Handler executes a tool in-process and returns its JSON result.
type Handler func(ctx context.Context, inv Invocation) (json.RawMessage, error)

// Descriptor describes one registered tool. Immutable once registered;
// re-registering the same name swaps the whole descriptor atomically.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Provider    string // credential provider the scope belongs to, empty when none
	Scope       string // required credential scope, empty when none
	Timeout     int    // execution timeout in seconds, 0 uses the dispatcher default
	Handler     Handler
}

// Registry maps tool names to descriptors. Read-mostly and safe for
// concurrent resolution.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	order  []string // registration order for List snapshots
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Descriptor),
		logger: logger.With("component", "tools"),
	}
}

// Register stores a descriptor under its name. If the name already exists
// the previous descriptor is replaced and a warning is logged — hot reload
// uses this replace-by-name path.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		r.logger.Warn("replacing registered tool", "tool", d.Name)
	} else {
		r.order = append(r.order, d.Name)
	}
	r.byName[d.Name] = d

	r.logger.Debug("tool registered", "tool", d.Name, "scope", d.Scope)
}

// RegisterStrict stores a descriptor but fails with ErrDuplicateTool when
// the name is already taken.
func (r *Registry) RegisterStrict(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	r.order = append(r.order, d.Name)
	r.byName[d.Name] = d
	return nil
}

// Resolve returns the descriptor for a tool name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d, nil
}

// List returns a snapshot of all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
