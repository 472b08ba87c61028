// Package result builds the single outward-facing ToolResult.
package result

import (
	"encoding/json"
	"fmt"

	"github.com/wilhg/shopmcp/pkg/errmodel"
)

// ToolResult is what the calling agent receives for every invocation.
type ToolResult struct {
	Content           string `json:"content"`
	StructuredContent any    `json:"structuredContent,omitempty"`
	IsError           bool   `json:"isError"`
}

// Success wraps a payload. Content is the indented JSON of the payload, or a
// plain rendering when the payload cannot be marshaled.
func Success(payload any) (res ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ToolResult{Content: fmt.Sprintf("%+v", payload), StructuredContent: nil}
		}
	}()
	return ToolResult{Content: render(payload), StructuredContent: payload}
}

// Failure converts any error into an error result whose content names the failure kind.
func Failure(err error) (res ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ToolResult{Content: fmt.Sprintf("Error: %v", r), IsError: true}
		}
	}()
	ce := errmodel.From(err)
	if ce == nil {
		ce = errmodel.System("internal", "unknown error", nil, nil)
	}
	kind := ce.Kind()
	return ToolResult{
		Content: fmt.Sprintf("%s: %s", kind, ce.Message),
		StructuredContent: map[string]any{
			"error": map[string]any{
				"kind":    string(kind),
				"code":    ce.Code,
				"message": ce.Message,
				"context": ce.Context,
			},
		},
		IsError: true,
	}
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
