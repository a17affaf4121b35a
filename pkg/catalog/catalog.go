// Package catalog holds the descriptors of the actions a plan may invoke.
//
// A descriptor names an action and declares its parameters in order, each
// with a type identifier understood by the coercion registry (or the
// intrinsic "query" type). Descriptors are immutable once registered: the
// Registry stores and returns deep copies.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ParameterDescriptor declares one named, typed parameter of an action.
type ParameterDescriptor struct {
	Name     string   `json:"name" yaml:"name"`
	TypeID   string   `json:"typeId" yaml:"type"`
	Examples []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// ActionDescriptor describes one invocable action.
type ActionDescriptor struct {
	ID          string                `json:"id" yaml:"id"`
	Description string                `json:"description" yaml:"description"`
	Parameters  []ParameterDescriptor `json:"parameters" yaml:"parameters"`
}

// ParameterNames returns the declared parameter names in declaration order.
func (d ActionDescriptor) ParameterNames() []string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy of d.
func (d ActionDescriptor) Clone() ActionDescriptor {
	out := ActionDescriptor{ID: d.ID, Description: d.Description}
	if d.Parameters != nil {
		out.Parameters = make([]ParameterDescriptor, len(d.Parameters))
		for i, p := range d.Parameters {
			out.Parameters[i] = ParameterDescriptor{Name: p.Name, TypeID: p.TypeID}
			if p.Examples != nil {
				out.Parameters[i].Examples = append([]string(nil), p.Examples...)
			}
		}
	}
	return out
}

// Validate checks that d can be registered.
func (d ActionDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return &DescriptorError{Code: ErrCodeEmptyID, Message: "action id is required"}
	}
	seen := make(map[string]struct{}, len(d.Parameters))
	for i, p := range d.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return &DescriptorError{Code: ErrCodeInvalidParam, ActionID: d.ID,
				Message: fmt.Sprintf("parameter %d has no name", i)}
		}
		if _, dup := seen[p.Name]; dup {
			return &DescriptorError{Code: ErrCodeInvalidParam, ActionID: d.ID,
				Message: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = struct{}{}
		if strings.TrimSpace(p.TypeID) == "" {
			return &DescriptorError{Code: ErrCodeInvalidParam, ActionID: d.ID,
				Message: fmt.Sprintf("parameter %q has no type", p.Name)}
		}
	}
	return nil
}

// Descriptor error codes.
const (
	ErrCodeEmptyID      = "ERR_CATALOG_EMPTY_ID"
	ErrCodeInvalidParam = "ERR_CATALOG_INVALID_PARAM"
	ErrCodeDuplicate    = "ERR_CATALOG_DUPLICATE"
)

// DescriptorError reports a descriptor that cannot be registered.
type DescriptorError struct {
	Code     string
	ActionID string
	Message  string
}

func (e *DescriptorError) Error() string {
	if e.ActionID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (action: %s)", e.Code, e.Message, e.ActionID)
}

// ErrNotFound is returned by stores when an action id is absent.
var ErrNotFound = errors.New("catalog: action not found")

// ActionCatalog looks up action descriptors by id.
type ActionCatalog interface {
	FindDescriptor(id string) (ActionDescriptor, bool)
	// ListDescriptors returns every descriptor in registration order.
	ListDescriptors() []ActionDescriptor
}

// Registry is an in-memory ActionCatalog. Registration and lookup may run
// concurrently.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]ActionDescriptor
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]ActionDescriptor)}
}

// Register adds d. Ids are unique.
func (r *Registry) Register(d ActionDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID]; exists {
		return &DescriptorError{Code: ErrCodeDuplicate, ActionID: d.ID, Message: "action already registered"}
	}
	r.byID[d.ID] = d.Clone()
	r.order = append(r.order, d.ID)
	return nil
}

// MustRegister is Register for static catalogs; it panics on error.
func (r *Registry) MustRegister(ds ...ActionDescriptor) *Registry {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// FindDescriptor implements ActionCatalog.
func (r *Registry) FindDescriptor(id string) (ActionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return ActionDescriptor{}, false
	}
	return d.Clone(), true
}

// ListDescriptors implements ActionCatalog.
func (r *Registry) ListDescriptors() []ActionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
