package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschemago "github.com/google/jsonschema-go/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema pairs the validating schema with a resolved copy used to apply defaults.
type compiledSchema struct {
	validator *jsonschema.Schema
	resolved  *jsonschemago.Resolved
}

func compileSchema(loc string, schema []byte) (*compiledSchema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, err
	}

	var s jsonschemago.Schema
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil, fmt.Errorf("parse schema defaults: %w", err)
	}
	resolved, err := s.Resolve(&jsonschemago.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return &compiledSchema{validator: sch, resolved: resolved}, nil
}

func (cs *compiledSchema) applyDefaults(args map[string]any) error {
	return cs.resolved.ApplyDefaults(&args)
}

func (cs *compiledSchema) validate(data any) error {
	// Round-trip through JSON so typed Go values validate like wire values.
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	return cs.validator.Validate(v)
}
