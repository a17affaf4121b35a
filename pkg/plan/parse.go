package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ParseRawPlan decodes the JSON plan shape
//
//	{"steps": [{"actionId": "...", "description": "...", "parameters": {...}}]}
//
// Numbers are kept as json.Number so integer parameters never pass through
// float64. A document without a "steps" array is rejected with ErrNilPlan.
func ParseRawPlan(data []byte) (*RawPlan, error) {
	var doc struct {
		Steps *[]RawPlanStep `json:"steps"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("plan: decode: trailing data after plan")
	}
	if doc.Steps == nil {
		return nil, fmt.Errorf("%w: missing steps array", ErrNilPlan)
	}
	return &RawPlan{Steps: *doc.Steps}, nil
}
