package errmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryPolicy     = "policy"
	CategoryNetwork    = "network"
	CategoryUpstream   = "upstream"
	CategoryLogical    = "logical"
	CategorySystem     = "system"
)

// Kind is the outward failure classification of a tool invocation.
type Kind string

const (
	KindNone                   Kind = ""
	KindInvalidInput           Kind = "InvalidInput"
	KindUnauthorized           Kind = "Unauthorized"
	KindNetwork                Kind = "Network"
	KindUpstreamError          Kind = "UpstreamError"
	KindUpstreamLogicalFailure Kind = "UpstreamLogicalFailure"
	KindInternal               Kind = "Internal"
)

// Error is the compact error payload returned by the gateway and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Kind classifies e into one of the invocation failure kinds.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindNone
	}
	switch e.Category {
	case CategoryValidation:
		return KindInvalidInput
	case CategoryPolicy:
		return KindUnauthorized
	case CategoryNetwork:
		return KindNetwork
	case CategoryUpstream:
		return KindUpstreamError
	case CategoryLogical:
		return KindUpstreamLogicalFailure
	default:
		return KindInternal
	}
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512)}
}

// KindOf returns the failure kind of err, or KindNone for a nil error.
func KindOf(err error) Kind {
	return From(err).Kind()
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

// InvalidInput reports arguments that failed the tool's input contract.
func InvalidInput(tool string, cause error) *Error {
	msg := "invalid input for " + tool
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(CategoryValidation, "invalid_input", msg, map[string]any{"tool": tool})
}

// UnknownTool reports a tool name with no registered contract.
func UnknownTool(tool string) *Error {
	return New(CategoryValidation, "not_found", fmt.Sprintf("unknown tool %q", tool), map[string]any{"tool": tool})
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

// Unauthorized reports an auth-required tool invoked without a usable credential.
func Unauthorized(tool, reason string) *Error {
	return Policy("unauthorized", "authentication required for "+tool+": "+reason, map[string]any{"tool": tool})
}

// Network reports a transport-level failure: timeout, refused connection, DNS, unreadable envelope.
func Network(code, message string, cause error) *Error {
	if cause != nil {
		return New(CategoryNetwork, code, message+": "+cause.Error(), nil)
	}
	return New(CategoryNetwork, code, message, nil)
}

// Upstream reports a non-2xx response. The status and a preview of the body ride in Context.
func Upstream(status int, message, body string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return New(CategoryUpstream, "upstream_error",
		fmt.Sprintf("upstream returned HTTP %d: %s", status, message),
		map[string]any{"status": status, "body": body})
}

// Logical reports a 2xx response whose envelope signals failure or lacks data.
func Logical(tool, message string) *Error {
	if message == "" {
		message = "upstream reported failure"
	}
	return New(CategoryLogical, "upstream_logical_failure", message, map[string]any{"tool": tool})
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		switch e.Code {
		case "not_found":
			return http.StatusNotFound
		default:
			return http.StatusBadRequest
		}
	case CategoryPolicy:
		switch e.Code {
		case "unauthorized":
			return http.StatusUnauthorized
		case "method_not_allowed":
			return http.StatusMethodNotAllowed
		default:
			return http.StatusForbidden
		}
	case CategoryNetwork:
		if e.Code == "timeout" {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case CategoryUpstream, CategoryLogical:
		return http.StatusBadGateway
	case CategorySystem:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a compact error envelope to the response writer.
// It attempts to include the trace_id if present in ctx.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	// Envelope { error: Error, trace_id?: string }
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// Truncate trims a string to max characters.
func Truncate(s string, max int) string { return truncate(s, max) }

// truncate cuts on a rune boundary so the result stays valid UTF-8.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeBoundary(s, max)]
	}
	return s[:runeBoundary(s, max-3)] + "..."
}

func runeBoundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		case int, int64, float64, bool:
			out[k] = t
		default:
			// Try to stringify composite values to keep payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				out[k] = truncate(string(b), 256)
			} else {
				out[k] = t
			}
		}
	}
	return out
}
