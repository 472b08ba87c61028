package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wilhg/shopmcp/pkg/config"
	"github.com/wilhg/shopmcp/pkg/mcpclient"
)

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-version"}, &out, io.Discard); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "shopmcp dev") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvAPIBaseURL, "not a url")
	err := run(context.Background(), nil, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), config.EnvAPIBaseURL) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-nope"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected flag error")
	}
}

func gateway(t *testing.T, retryReads bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 && retryReads {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"message":"warming up"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"products":[],"total":0}}`))
	}))
	t.Cleanup(api.Close)

	cfg := config.Default()
	cfg.APIBaseURL = api.URL + "/api"
	cfg.RetryReads = retryReads
	cfg.RetryDelay = time.Millisecond
	d, err := buildGateway(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	gw := httptest.NewServer(d.Handler())
	t.Cleanup(gw.Close)
	return gw, calls
}

func TestBuildGatewayServesCatalog(t *testing.T) {
	gw, calls := gateway(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := mcpclient.Dial(ctx, gw.URL+"/mcp", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	res, err := c.CallTool(ctx, "search_new_arrivals", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || calls.Load() != 1 {
		t.Fatalf("isError=%v calls=%d", res.IsError, calls.Load())
	}
}

func TestBuildGatewayRetriesReads(t *testing.T) {
	gw, calls := gateway(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := mcpclient.Dial(ctx, gw.URL+"/mcp", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	res, err := c.CallTool(ctx, "search_products", map[string]any{"search": "toner"})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || calls.Load() != 2 {
		t.Fatalf("isError=%v calls=%d", res.IsError, calls.Load())
	}
}

func TestProbeListsTools(t *testing.T) {
	gw, _ := gateway(t, false)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-probe", gw.URL + "/mcp"}, &out, io.Discard); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"NAME", "search_products", "clear_cart", "update_preferences"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("probe output missing %q:\n%s", name, out.String())
		}
	}
}

func TestProbeOverSSE(t *testing.T) {
	gw, _ := gateway(t, false)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-probe", gw.URL + "/sse", "-probe-sse"}, &out, io.Discard); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "\n"); got != 15 {
		t.Fatalf("lines=%d want 15:\n%s", got, out.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvAddr, "127.0.0.1:0")
	t.Setenv(config.EnvAPIBaseURL, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvTraceStdout, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, nil, io.Discard, io.Discard) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestEvalFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-eval", "../../pkg/eval/testdata/fixtures"}, &out, io.Discard); err != nil {
		t.Fatalf("%v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "passed 9/9") {
		t.Fatalf("out=%q", out.String())
	}
}
