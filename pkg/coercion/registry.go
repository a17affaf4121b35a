// Package coercion converts untyped plan parameter values into typed Go
// values, keyed by the type identifier an action declares for each
// parameter.
//
// A Registry is built once at startup with a Builder and is read-only
// afterwards, so it can be shared by any number of concurrent resolutions.
// Handlers are pure: they never perform I/O and never retain or mutate the
// raw value they are given.
package coercion

import (
	"errors"
	"fmt"
	"sort"
)

// Handler converts a raw value into a typed value for one type identifier.
type Handler func(raw any) (any, error)

// Lookup finds the handler for a type identifier.
type Lookup interface {
	Lookup(typeID string) (Handler, bool)
}

// Error is returned by the builtin handlers when a value cannot be coerced.
type Error struct {
	TypeID string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot coerce value to %s: %s", e.TypeID, e.Reason)
}

func errorf(typeID, format string, args ...any) *Error {
	return &Error{TypeID: typeID, Reason: fmt.Sprintf(format, args...)}
}

// Registry is an immutable mapping from type identifier to Handler.
type Registry struct {
	handlers map[string]Handler
}

// Lookup implements Lookup. A nil Registry has no handlers.
func (r *Registry) Lookup(typeID string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[typeID]
	return h, ok
}

// Types returns the registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Builder assembles a Registry. It is not safe for concurrent use.
type Builder struct {
	handlers map[string]Handler
	errs     []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for typeID.
func (b *Builder) Register(typeID string, h Handler) *Builder {
	switch {
	case typeID == "":
		b.errs = append(b.errs, errors.New("coercion: empty type id"))
	case h == nil:
		b.errs = append(b.errs, fmt.Errorf("coercion: nil handler for %q", typeID))
	default:
		b.handlers[typeID] = h
	}
	return b
}

// Alias registers alias as another name for an already registered type.
func (b *Builder) Alias(alias, typeID string) *Builder {
	h, ok := b.handlers[typeID]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("coercion: alias %q targets unregistered type %q", alias, typeID))
		return b
	}
	return b.Register(alias, h)
}

// WithBuiltins registers every builtin type.
func (b *Builder) WithBuiltins() *Builder {
	for id, h := range builtins() {
		b.Register(id, h)
	}
	return b
}

// Build returns the Registry, or the first registration error.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	handlers := make(map[string]Handler, len(b.handlers))
	for id, h := range b.handlers {
		handlers[id] = h
	}
	return &Registry{handlers: handlers}, nil
}

// Default returns a Registry holding the builtin types.
func Default() *Registry {
	r, err := NewBuilder().WithBuiltins().Build()
	if err != nil {
		panic(fmt.Sprintf("coercion: builtin registry: %v", err))
	}
	return r
}

// Empty returns a Registry with no handlers.
func Empty() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}
