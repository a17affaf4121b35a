package coercion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RegisterSchema registers typeID as a structured type whose values must
// satisfy the given JSON Schema (draft 2020-12). The coerced value is a deep
// copy of the raw value. Compile errors surface from Build.
func (b *Builder) RegisterSchema(typeID, schema string) *Builder {
	compiled, err := compileSchema(typeID, schema)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.Register(typeID, schemaHandler(typeID, compiled))
}

func compileSchema(typeID, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://helm-actions.schemas.local/types/%s.schema.json", typeID)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("coercion: schema for %q load failed: %w", typeID, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("coercion: schema for %q compile failed: %w", typeID, err)
	}
	return compiled, nil
}

func schemaHandler(typeID string, schema *jsonschema.Schema) Handler {
	return func(raw any) (any, error) {
		if err := schema.Validate(raw); err != nil {
			var verr *jsonschema.ValidationError
			if errors.As(err, &verr) {
				return nil, errorf(typeID, "%s", leafMessage(verr))
			}
			return nil, errorf(typeID, "%v", err)
		}
		return copyJSON(typeID, raw)
	}
}

// leafMessage picks the most specific cause, which names the failing
// location rather than the schema root.
func leafMessage(v *jsonschema.ValidationError) string {
	for len(v.Causes) > 0 {
		v = v.Causes[0]
	}
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, v.Message)
}
