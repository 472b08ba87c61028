package contract

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/wilhg/shopmcp/pkg/errmodel"
)

type sumInput struct {
	A     float64  `json:"a" jsonschema:"first addend"`
	B     float64  `json:"b"`
	Scale *int     `json:"scale,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type sumOutput struct {
	Sum float64 `json:"sum"`
}

func sumContract() ToolContract {
	return ToolContract{
		Name:         "sum",
		InputSchema:  MustSchemaFor[sumInput](Default("scale", 1), Minimum("scale", 1)),
		OutputSchema: MustSchemaFor[sumOutput](),
		Meta:         Metadata{Agent: "math_agent", Category: "math"},
		Route:        Route{Method: http.MethodGet, Path: "/sum", Query: []string{"a", "b", "scale"}},
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(sumContract()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(sumContract()); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected collision error, got %v", err)
	}
	c, err := r.Lookup("sum")
	if err != nil || c == nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.Meta.Agent != "math_agent" {
		t.Fatalf("meta=%+v", c.Meta)
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")
	ce := errmodel.From(err)
	if ce == nil || ce.Code != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRegistryRejectsBrokenContracts(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolContract{}); err == nil {
		t.Fatal("expected error for empty name")
	}
	c := sumContract()
	c.InputSchema = []byte(`{"type":`)
	if err := r.Register(c); err == nil {
		t.Fatal("expected error for malformed schema")
	}
	c = sumContract()
	c.Route = Route{}
	if err := r.Register(c); err == nil {
		t.Fatal("expected error for missing route")
	}
}

func TestMustRegisterPanicsOnCollision(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRegistry().MustRegister(sumContract(), sumContract())
}

func TestPrepareInput(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(sumContract())
	c, _ := r.Lookup("sum")

	got, err := c.PrepareInput(map[string]any{"a": 1.0, "b": 2.0, "scale": nil, "extra": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if got["scale"] != 1.0 {
		t.Fatalf("default not applied: %v", got)
	}
	if got["extra"] != "ignored" {
		t.Fatalf("extra field dropped: %v", got)
	}

	if _, err := c.PrepareInput(map[string]any{"a": 1.0}); err == nil {
		t.Fatal("expected missing required field error")
	}
	if _, err := c.PrepareInput(map[string]any{"a": "x", "b": 2.0}); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if _, err := c.PrepareInput(map[string]any{"a": 1.0, "b": 2.0, "scale": 0.0}); err == nil {
		t.Fatal("expected minimum violation")
	}
}

func TestCheckOutput(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(sumContract())
	c, _ := r.Lookup("sum")
	if err := c.CheckOutput(map[string]any{"sum": 3, "note": "extra fields allowed"}); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckOutput(map[string]any{"sum": "three"}); err == nil {
		t.Fatal("expected output validation error")
	}
}

func TestSchemaForMarksOptionalAndNullable(t *testing.T) {
	b := MustSchemaFor[sumInput]()
	var doc struct {
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if strings.Join(doc.Required, ",") != "a,b" {
		t.Fatalf("required=%v", doc.Required)
	}
	if !strings.Contains(string(doc.Properties["scale"]), "null") {
		t.Fatalf("pointer field should be nullable: %s", doc.Properties["scale"])
	}
	if !strings.Contains(string(doc.Properties["a"]), "first addend") {
		t.Fatalf("description missing: %s", doc.Properties["a"])
	}
	if _, err := SchemaFor[sumInput](Default("nope", 1)); err == nil {
		t.Fatal("expected unknown property error")
	}
}

func TestIsWrite(t *testing.T) {
	c := sumContract()
	if c.IsWrite() {
		t.Fatal("GET route reported as write")
	}
	c.Route.Method = http.MethodPost
	if !c.IsWrite() {
		t.Fatal("POST route not reported as write")
	}
}
