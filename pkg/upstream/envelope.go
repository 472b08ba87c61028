package upstream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Request is one call against the upstream resource API.
// Query holds only defined values; repeated keys encode array filters.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Header  http.Header
	Timeout time.Duration
}

// Envelope is the uniform {success, data, message} wrapper every upstream endpoint returns.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`

	// Status is the HTTP status of the response that carried the envelope.
	Status int `json:"-"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool { return e != nil && e.Data != nil }

// decodeEnvelope parses a response body. ok is false when the body is not a
// JSON object with a boolean success field.
func decodeEnvelope(body []byte) (env *Envelope, ok bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false
	}
	rawSuccess, has := probe["success"]
	if !has {
		return nil, false
	}
	env = &Envelope{}
	if err := json.Unmarshal(rawSuccess, &env.Success); err != nil {
		return nil, false
	}
	if raw, has := probe["data"]; has && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &env.Data); err != nil {
			return nil, false
		}
	}
	if raw, has := probe["message"]; has {
		_ = json.Unmarshal(raw, &env.Message)
	}
	return env, true
}

// errorMessage pulls a human-readable message out of an error response body.
func errorMessage(body []byte) string {
	var probe struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.Message != "" {
		return probe.Message
	}
	switch e := probe.Error.(type) {
	case string:
		return e
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return m
		}
	}
	return ""
}
