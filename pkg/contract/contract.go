// Package contract declares the static interface of every tool the gateway
// exposes and keeps them in a registry that is fixed at process start.
//
// A ToolContract carries:
//   - the input and output JSON Schemas (draft 2020-12) in UTF-8 bytes
//   - metadata used by orchestrators to route calls (agent, category, auth)
//   - the upstream route the pipeline derives requests from
//   - the output mapping that turns upstream data into the declared output shape
//
// Contracts are immutable once registered. Schemas are compiled during
// Register so a malformed contract fails the process at startup rather than
// on the first call.
package contract

import (
	"net/http"
)

// TimeoutClass selects which configured upstream timeout applies to a tool.
type TimeoutClass string

const (
	TimeoutDefault TimeoutClass = "default"
	TimeoutSearch  TimeoutClass = "search"
	TimeoutCart    TimeoutClass = "cart"
)

// Metadata is the routing information published alongside a tool.
type Metadata struct {
	Agent        string `json:"agent"`
	Category     string `json:"category"`
	AuthRequired bool   `json:"auth_required"`
}

// Hints mirror MCP tool annotations.
type Hints struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
}

// Route describes how validated arguments become an upstream request.
//
// Path may contain {name} placeholders filled from arguments of the same name.
// Query lists argument names serialized into the query string; Body lists the
// names placed in the JSON body. Arguments absent after validation are skipped.
type Route struct {
	Method  string
	Path    string
	Query   []string
	Body    []string
	Timeout TimeoutClass
}

// OutputMapping describes how upstream data becomes structured output.
//
// When Wrap is set, data is placed under that key; otherwise data must be a
// JSON object and is used as the output directly. Echo copies the named
// request arguments into the output (write operations). FieldsKey, when set,
// names an output key listing which Route.Body arguments were sent.
// AllowEmptyData lets a successful envelope carry no data.
type OutputMapping struct {
	Wrap           string
	Echo           []string
	FieldsKey      string
	AllowEmptyData bool
}

// ToolContract declares one tool.
type ToolContract struct {
	Name         string
	Title        string
	Description  string
	InputSchema  []byte
	OutputSchema []byte
	Meta         Metadata
	Hints        Hints
	Route        Route
	Output       OutputMapping

	in  *compiledSchema
	out *compiledSchema
}

// IsWrite reports whether the tool's upstream call has side effects.
func (c *ToolContract) IsWrite() bool {
	switch c.Route.Method {
	case http.MethodGet, http.MethodHead, "":
		return false
	default:
		return true
	}
}

// PrepareInput normalizes raw arguments and checks them against the input schema.
// Explicit nulls are dropped (null and absent are equivalent for optional
// fields), declared defaults are filled in, and the result is validated.
// Unknown extra fields are kept but ignored by routing.
func (c *ToolContract) PrepareInput(args map[string]any) (map[string]any, error) {
	prepared := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		prepared[k] = v
	}
	if c.in == nil {
		return prepared, nil
	}
	if err := c.in.applyDefaults(prepared); err != nil {
		return nil, err
	}
	if err := c.in.validate(prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

// CheckOutput validates a shaped output against the output schema.
func (c *ToolContract) CheckOutput(out map[string]any) error {
	if c.out == nil {
		return nil
	}
	return c.out.validate(out)
}
