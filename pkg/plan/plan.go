// Package plan turns untrusted model-produced plans into validated,
// typed invocations.
//
// Resolution never fails because of a bad step. Every raw step yields
// exactly one resolved step at the same index: a *BoundStep when the action
// exists and every parameter coerced, or an *ErrorStep describing the first
// problem found. Callers type-switch on ResolvedStep to handle both.
package plan

import (
	"encoding/json"
	"errors"
)

// Process-level failures. Per-step problems never surface as errors.
var (
	ErrNilPlan    = errors.New("plan: raw plan is nil")
	ErrNilCatalog = errors.New("plan: resolution context has no action catalog")
)

// RawPlan is a plan as produced by the model. Nothing in it is trusted.
type RawPlan struct {
	Steps []RawPlanStep `json:"steps"`
}

// RawPlanStep names an action and supplies its parameters by name.
type RawPlanStep struct {
	ActionID    string         `json:"actionId"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ErrorKind classifies why a step could not be bound.
type ErrorKind string

const (
	// UnknownAction: the action id is not in the catalog.
	UnknownAction ErrorKind = "UnknownAction"
	// ArityMismatch: supplied parameter names differ from the declared ones.
	ArityMismatch ErrorKind = "ArityMismatch"
	// UnsupportedType: no coercion handler exists for a declared type.
	UnsupportedType ErrorKind = "UnsupportedType"
	// TypeConversion: a coercion handler rejected the raw value.
	TypeConversion ErrorKind = "TypeConversion"
	// QueryValidation: a query parameter failed shape, schema or dialect checks.
	QueryValidation ErrorKind = "QueryValidation"
)

// ResolvedStep is either a *BoundStep or an *ErrorStep.
type ResolvedStep interface {
	// StepIndex is the position of the step in the raw plan.
	StepIndex() int
	// StepActionID is the action id the raw step named, possibly unknown.
	StepActionID() string
	resolved()
}

// BoundStep is a step whose action exists and whose parameters were all
// coerced to their declared types.
type BoundStep struct {
	Index      int
	ActionID   string
	Parameters map[string]any
}

func (s *BoundStep) StepIndex() int       { return s.Index }
func (s *BoundStep) StepActionID() string { return s.ActionID }
func (*BoundStep) resolved()              {}

// MarshalJSON renders the step with "status": "bound".
func (s *BoundStep) MarshalJSON() ([]byte, error) {
	params := s.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(struct {
		Status     string         `json:"status"`
		Index      int            `json:"index"`
		ActionID   string         `json:"actionId"`
		Parameters map[string]any `json:"parameters"`
	}{"bound", s.Index, s.ActionID, params})
}

// ErrorStep records why a step could not be bound.
type ErrorStep struct {
	Index    int
	ActionID string
	Kind     ErrorKind
	// Parameter names the failing parameter, when the failure is about one.
	Parameter string
	// Code is the query validation code for QueryValidation failures.
	Code    string
	Message string
}

func (s *ErrorStep) StepIndex() int       { return s.Index }
func (s *ErrorStep) StepActionID() string { return s.ActionID }
func (*ErrorStep) resolved()              {}

func (s *ErrorStep) Error() string { return string(s.Kind) + ": " + s.Message }

// MarshalJSON renders the step with "status": "error".
func (s *ErrorStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status    string    `json:"status"`
		Index     int       `json:"index"`
		ActionID  string    `json:"actionId"`
		Kind      ErrorKind `json:"kind"`
		Parameter string    `json:"parameter,omitempty"`
		Code      string    `json:"code,omitempty"`
		Message   string    `json:"message"`
	}{"error", s.Index, s.ActionID, s.Kind, s.Parameter, s.Code, s.Message})
}

// ResolvedPlan holds one resolved step per raw step, in raw order.
type ResolvedPlan struct {
	Steps []ResolvedStep `json:"steps"`
}

// Bound returns the bound steps in order.
func (p *ResolvedPlan) Bound() []*BoundStep {
	var out []*BoundStep
	for _, s := range p.Steps {
		if b, ok := s.(*BoundStep); ok {
			out = append(out, b)
		}
	}
	return out
}

// Errors returns the error steps in order.
func (p *ResolvedPlan) Errors() []*ErrorStep {
	var out []*ErrorStep
	for _, s := range p.Steps {
		if e, ok := s.(*ErrorStep); ok {
			out = append(out, e)
		}
	}
	return out
}

// HasErrors reports whether any step failed to bind.
func (p *ResolvedPlan) HasErrors() bool {
	for _, s := range p.Steps {
		if _, ok := s.(*ErrorStep); ok {
			return true
		}
	}
	return false
}
