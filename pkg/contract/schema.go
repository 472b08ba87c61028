package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschemago "github.com/google/jsonschema-go/jsonschema"
)

// SchemaOption adjusts one property of an inferred schema. Property paths may
// be dotted to reach nested objects ("price_range.min").
type SchemaOption func(root *jsonschemago.Schema) error

// Default declares the value used when the property is absent.
func Default(prop string, v any) SchemaOption {
	return withProperty(prop, func(s *jsonschemago.Schema) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		s.Default = b
		return nil
	})
}

// Minimum bounds a numeric property from below.
func Minimum(prop string, min float64) SchemaOption {
	return withProperty(prop, func(s *jsonschemago.Schema) error {
		s.Minimum = &min
		return nil
	})
}

// Maximum bounds a numeric property from above.
func Maximum(prop string, max float64) SchemaOption {
	return withProperty(prop, func(s *jsonschemago.Schema) error {
		s.Maximum = &max
		return nil
	})
}

// MinLength requires a string property to be at least n characters.
func MinLength(prop string, n int) SchemaOption {
	return withProperty(prop, func(s *jsonschemago.Schema) error {
		s.MinLength = &n
		return nil
	})
}

// Enum restricts a property to the given values.
func Enum(prop string, vals ...any) SchemaOption {
	return withProperty(prop, func(s *jsonschemago.Schema) error {
		s.Enum = vals
		return nil
	})
}

func withProperty(path string, fn func(*jsonschemago.Schema) error) SchemaOption {
	return func(root *jsonschemago.Schema) error {
		s := root
		for _, part := range strings.Split(path, ".") {
			next, ok := s.Properties[part]
			if !ok {
				return fmt.Errorf("schema has no property %q", path)
			}
			s = next
		}
		return fn(s)
	}
}

// SchemaFor infers a JSON Schema from the record type T.
//
// Fields tagged omitempty are optional, pointer fields also accept null, and
// the jsonschema struct tag becomes the property description. Objects accept
// unknown extra properties so callers can send more than the contract reads.
func SchemaFor[T any](opts ...SchemaOption) ([]byte, error) {
	s, err := jsonschemago.For[T](nil)
	if err != nil {
		return nil, err
	}
	openObjects(s)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return json.Marshal(s)
}

// MustSchemaFor is SchemaFor for static tables; it panics on a malformed record type.
func MustSchemaFor[T any](opts ...SchemaOption) []byte {
	b, err := SchemaFor[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("contract: schema inference: %v", err))
	}
	return b
}

func openObjects(s *jsonschemago.Schema) {
	if s == nil {
		return
	}
	if s.Type == "object" || containsType(s.Types, "object") {
		// Structs are inferred with additionalProperties: false.
		if ap := s.AdditionalProperties; ap != nil && ap.Not != nil {
			s.AdditionalProperties = nil
		}
	}
	for _, p := range s.Properties {
		openObjects(p)
	}
	openObjects(s.Items)
}

func containsType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
