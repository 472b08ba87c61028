// Package eval replays recorded tool invocations through the pipeline against
// recorded upstream responses and scores the outcomes. No network is used:
// each fixture's upstream response is served by an in-process RoundTripper
// behind the real upstream client, so envelope decoding and error
// normalization run exactly as in production.
package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/wilhg/shopmcp/pkg/auth"
	"github.com/wilhg/shopmcp/pkg/contract"
	"github.com/wilhg/shopmcp/pkg/pipeline"
	"github.com/wilhg/shopmcp/pkg/result"
	"github.com/wilhg/shopmcp/pkg/tools"
	"github.com/wilhg/shopmcp/pkg/upstream"
)

const recordedBaseURL = "http://upstream.invalid/api"

// Fixture is one recorded invocation.
type Fixture struct {
	Name      string         `json:"name"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	// Token is sent the way a transport would: as a bearer header value.
	Token    string      `json:"token,omitempty"`
	Upstream *Recording  `json:"upstream,omitempty"`
	Expect   Expectation `json:"expect"`
}

// Recording is the upstream response served to the fixture.
type Recording struct {
	Status int             `json:"status,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	// Fail replaces the response with a transport failure: "connection" or "timeout".
	Fail string `json:"fail,omitempty"`
}

// Expectation describes the result a fixture must produce.
type Expectation struct {
	IsError     bool     `json:"is_error"`
	Kind        string   `json:"kind,omitempty"`
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
	// UpstreamCalls, when set, is the exact number of upstream requests.
	UpstreamCalls *int                `json:"upstream_calls,omitempty"`
	Request       *RequestExpectation `json:"request,omitempty"`
}

// RequestExpectation checks the request the pipeline sent upstream.
type RequestExpectation struct {
	Method        string            `json:"method,omitempty"`
	Path          string            `json:"path,omitempty"`
	Query         map[string]string `json:"query,omitempty"`
	AbsentQuery   []string          `json:"absent_query,omitempty"`
	Authorization string            `json:"authorization,omitempty"`
}

// Report summarizes an evaluation.
type Report struct {
	Total   int
	Passed  int
	Score   float64
	Details []string
}

// Evaluate loads every *.json fixture in dir and runs them.
func Evaluate(ctx context.Context, fsys fs.FS, dir string, logger *slog.Logger) (Report, error) {
	fixtures, err := LoadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	return Run(ctx, fixtures, logger)
}

// LoadFixtures reads fixtures from dir in file name order.
func LoadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("fixture %s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, fx)
	}
	return out, nil
}

// Run evaluates fixtures against the built-in tool catalog. An empty set scores 1.
func Run(ctx context.Context, fixtures []Fixture, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg, err := tools.NewRegistry()
	if err != nil {
		return Report{}, err
	}
	rep := Report{Total: len(fixtures), Score: 1}
	for _, fx := range fixtures {
		problems, err := runOne(ctx, reg, fx, logger)
		if err != nil {
			return Report{}, fmt.Errorf("fixture %s: %w", fx.Name, err)
		}
		if len(problems) == 0 {
			rep.Passed++
			continue
		}
		for _, p := range problems {
			rep.Details = append(rep.Details, fx.Name+": "+p)
		}
	}
	if rep.Total > 0 {
		rep.Score = float64(rep.Passed) / float64(rep.Total)
	}
	return rep, nil
}

func runOne(ctx context.Context, reg *contract.Registry, fx Fixture, logger *slog.Logger) ([]string, error) {
	rt := &recorded{rec: fx.Upstream}
	client, err := upstream.New(&upstream.Options{
		BaseURL:    recordedBaseURL,
		HTTPClient: &http.Client{Transport: rt},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(&pipeline.Options{Registry: reg, Caller: client, Logger: logger})
	if err != nil {
		return nil, err
	}

	args := make(map[string]any, len(fx.Arguments)+1)
	for k, v := range fx.Arguments {
		args[k] = v
	}
	if fx.Token != "" {
		auth.Inject(args, "Bearer "+fx.Token)
	}
	res := p.Invoke(ctx, pipeline.Invocation{Tool: fx.Tool, Arguments: args})
	return check(fx.Expect, res, rt), nil
}

func check(want Expectation, res result.ToolResult, rt *recorded) []string {
	var problems []string
	if res.IsError != want.IsError {
		problems = append(problems, fmt.Sprintf("is_error=%v want %v (%s)", res.IsError, want.IsError, res.Content))
	}
	if want.Kind != "" {
		if got := kindOf(res); got != want.Kind {
			problems = append(problems, fmt.Sprintf("kind=%q want %q", got, want.Kind))
		}
	}
	for _, s := range want.Contains {
		if !strings.Contains(res.Content, s) {
			problems = append(problems, "missing contains: "+s)
		}
	}
	for _, s := range want.NotContains {
		if strings.Contains(res.Content, s) {
			problems = append(problems, "unexpected contains: "+s)
		}
	}

	reqs := rt.requests()
	if want.UpstreamCalls != nil && len(reqs) != *want.UpstreamCalls {
		problems = append(problems, fmt.Sprintf("upstream calls=%d want %d", len(reqs), *want.UpstreamCalls))
	}
	if rw := want.Request; rw != nil {
		if len(reqs) == 0 {
			return append(problems, "no upstream request sent")
		}
		problems = append(problems, checkRequest(*rw, reqs[len(reqs)-1])...)
	}
	return problems
}

func checkRequest(want RequestExpectation, r *http.Request) []string {
	var problems []string
	if want.Method != "" && r.Method != want.Method {
		problems = append(problems, fmt.Sprintf("method=%s want %s", r.Method, want.Method))
	}
	if want.Path != "" {
		got := strings.TrimPrefix(r.URL.EscapedPath(), "/api")
		if got != want.Path {
			problems = append(problems, fmt.Sprintf("path=%s want %s", got, want.Path))
		}
	}
	q := r.URL.Query()
	for _, k := range slices.Sorted(maps.Keys(want.Query)) {
		if got := strings.Join(q[k], ","); got != want.Query[k] {
			problems = append(problems, fmt.Sprintf("query %s=%q want %q", k, got, want.Query[k]))
		}
	}
	for _, k := range want.AbsentQuery {
		if q.Has(k) {
			problems = append(problems, "query carries "+k)
		}
	}
	if want.Authorization != "" && r.Header.Get("Authorization") != want.Authorization {
		problems = append(problems, fmt.Sprintf("authorization=%q want %q", r.Header.Get("Authorization"), want.Authorization))
	}
	return problems
}

func kindOf(res result.ToolResult) string {
	sc, _ := res.StructuredContent.(map[string]any)
	e, _ := sc["error"].(map[string]any)
	k, _ := e["kind"].(string)
	return k
}

// recorded serves a Recording and keeps every request it saw.
type recorded struct {
	rec *Recording

	mu   sync.Mutex
	seen []*http.Request
}

func (r *recorded) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
	r.mu.Lock()
	r.seen = append(r.seen, req)
	r.mu.Unlock()

	if r.rec == nil {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no recorded response")}
	}
	switch r.rec.Fail {
	case "":
	case "timeout":
		return nil, context.DeadlineExceeded
	default:
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	status := r.rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(r.rec.Body)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}, nil
}

func (r *recorded) requests() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen)
}
