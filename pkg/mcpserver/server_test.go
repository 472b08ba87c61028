package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/shopmcp/pkg/mcpclient"
	"github.com/wilhg/shopmcp/pkg/pipeline"
	"github.com/wilhg/shopmcp/pkg/tools"
	"github.com/wilhg/shopmcp/pkg/upstream"
)

type fakeAPI struct {
	calls    atomic.Int32
	lastAuth atomic.Value
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.lastAuth.Store(r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/products/search":
		_, _ = w.Write([]byte(`{"success":true,"data":{"products":[{"id":"p1","name":"` + r.URL.Query().Get("search") + `"}],"total":1,"page":1,"limit":10,"total_pages":1}}`))
	case "/api/cart":
		_, _ = w.Write([]byte(`{"success":true,"data":{"items":[],"total":0}}`))
	case "/api/me/preferences":
		_, _ = w.Write([]byte(`{"success":true,"data":{"skin_type":"dry"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"not found"}`))
	}
}

func newGateway(t *testing.T) (*httptest.Server, *fakeAPI) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &fakeAPI{}
	up := httptest.NewServer(api)
	t.Cleanup(up.Close)

	client, err := upstream.New(&upstream.Options{BaseURL: up.URL + "/api", HTTPClient: up.Client(), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := tools.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(&pipeline.Options{Registry: reg, Caller: client, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(p, &Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	gw := httptest.NewServer(d.Handler())
	t.Cleanup(gw.Close)
	return gw, api
}

// dial connects with a context that lives as long as the test; the session's
// streams stop when the dial context ends.
func dial(t *testing.T, endpoint string, opts *mcpclient.Options) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.Dial(t.Context(), endpoint, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func text(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestStreamableListsCatalog(t *testing.T) {
	gw, _ := newGateway(t)
	c := dial(t, gw.URL+"/mcp", nil)

	ts, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 14 {
		t.Fatalf("tools=%d want 14", len(ts))
	}
	byName := map[string]*mcp.Tool{}
	for _, tool := range ts {
		byName[tool.Name] = tool
	}
	search := byName["search_products"]
	if search == nil || !search.Annotations.ReadOnlyHint || search.Meta["auth_required"] != false || search.Meta["agent"] != "search_agent" {
		t.Fatalf("search_products=%+v", search)
	}
	if search.OutputSchema == nil {
		t.Fatal("output schema not published")
	}
	cc := byName["clear_cart"]
	if cc == nil || cc.Annotations.DestructiveHint == nil || !*cc.Annotations.DestructiveHint {
		t.Fatalf("clear_cart annotations=%+v", cc.Annotations)
	}
	if byName["view_cart"].Meta["auth_required"] != true {
		t.Fatal("view_cart must require auth")
	}
}

func TestStreamableCallSucceeds(t *testing.T) {
	gw, _ := newGateway(t)
	c := dial(t, gw.URL+"/mcp", nil)

	res, err := c.CallTool(context.Background(), "search_products", map[string]any{"search": "serum"})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	out, ok := res.StructuredContent.(map[string]any)
	if !ok || out["total"] != 1.0 {
		t.Fatalf("structured=%v", res.StructuredContent)
	}
	if !strings.Contains(text(res), "serum") {
		t.Fatalf("content=%s", text(res))
	}
}

func TestStreamableBearerHeaderReachesUpstream(t *testing.T) {
	gw, api := newGateway(t)
	c := dial(t, gw.URL+"/mcp", &mcpclient.Options{Token: "tok-1"})

	res, err := c.CallTool(context.Background(), "view_cart", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if got := api.lastAuth.Load(); got != "Bearer tok-1" {
		t.Fatalf("upstream authorization=%v", got)
	}
}

func TestReservedFieldWinsOverHeader(t *testing.T) {
	gw, api := newGateway(t)
	c := dial(t, gw.URL+"/mcp", &mcpclient.Options{Token: "from-header"})

	res, err := c.CallTool(context.Background(), "view_cart", map[string]any{"_auth_token": "from-args"})
	if err != nil || res.IsError {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if got := api.lastAuth.Load(); got != "Bearer from-args" {
		t.Fatalf("upstream authorization=%v", got)
	}
}

func TestMissingCredentialIsUnauthorized(t *testing.T) {
	gw, api := newGateway(t)
	c := dial(t, gw.URL+"/mcp", nil)

	res, err := c.CallTool(context.Background(), "view_cart", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.HasPrefix(text(res), "Unauthorized") {
		t.Fatalf("res=%s", text(res))
	}
	if res.StructuredContent != nil {
		t.Fatalf("error result carries structured content %v; it would not match the output schema", res.StructuredContent)
	}
	if api.calls.Load() != 0 {
		t.Fatalf("upstream called %d times", api.calls.Load())
	}
}

func TestOneShotCallWithoutInitialize(t *testing.T) {
	gw, api := newGateway(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_products","arguments":{"search":"serum"}}}`
	req, _ := http.NewRequest(http.MethodPost, gw.URL+"/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	var rpc struct {
		Result *struct {
			IsError           bool           `json:"isError"`
			StructuredContent map[string]any `json:"structuredContent"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		t.Fatal(err)
	}
	if rpc.Error != nil || rpc.Result == nil {
		t.Fatalf("rpc error=%+v", rpc.Error)
	}
	if rpc.Result.IsError || rpc.Result.StructuredContent["total"] != 1.0 {
		t.Fatalf("result=%+v", rpc.Result)
	}
	if api.calls.Load() != 1 {
		t.Fatalf("upstream calls=%d", api.calls.Load())
	}
}

func TestUnknownToolIsRejected(t *testing.T) {
	gw, api := newGateway(t)
	c := dial(t, gw.URL+"/mcp", nil)

	if _, err := c.CallTool(context.Background(), "drop_tables", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if api.calls.Load() != 0 {
		t.Fatal("upstream called for unknown tool")
	}
}

func TestSSESessionCarriesHeader(t *testing.T) {
	gw, api := newGateway(t)
	c := dial(t, gw.URL+"/sse", &mcpclient.Options{Transport: mcpclient.SSE, Token: "sse-tok"})

	res, err := c.CallTool(context.Background(), "get_preferences", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	out := res.StructuredContent.(map[string]any)
	if prefs, _ := out["preferences"].(map[string]any); prefs["skin_type"] != "dry" {
		t.Fatalf("structured=%v", out)
	}
	if got := api.lastAuth.Load(); got != "Bearer sse-tok" {
		t.Fatalf("upstream authorization=%v", got)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	gw, api := newGateway(t)
	resp, err := http.Get(gw.URL + "/admin")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "not_found" {
		t.Fatalf("code=%q", env.Error.Code)
	}
	if api.calls.Load() != 0 {
		t.Fatal("pipeline reached for unknown path")
	}
}

func TestHealthz(t *testing.T) {
	gw, _ := newGateway(t)
	resp, err := http.Get(gw.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "ok" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, b)
	}
}

func TestCORSPreflight(t *testing.T) {
	gw, _ := newGateway(t)
	req, _ := http.NewRequest(http.MethodOptions, gw.URL+"/mcp", nil)
	req.Header.Set("Origin", "http://agent.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestNewRequiresPipeline(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	reg, _ := tools.NewRegistry()
	p, err := pipeline.New(&pipeline.Options{Registry: reg, Caller: upstreamStub{}})
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(p, &Options{Addr: "127.0.0.1:0", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	reg, _ := tools.NewRegistry()
	p, err := pipeline.New(&pipeline.Options{Registry: reg, Caller: upstreamStub{}})
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(p, &Options{Addr: "127.0.0.1:0", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown before start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- d.ListenAndServe(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type upstreamStub struct{}

func (upstreamStub) Do(context.Context, *upstream.Request) (*upstream.Envelope, error) {
	return &upstream.Envelope{Success: true, Data: map[string]any{}}, nil
}
