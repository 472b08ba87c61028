// Package upstream is the HTTP client for the remote resource API.
//
// Every call returns either an *Envelope or an *errmodel.Error of one of
// three kinds: network (transport failed or the body was not an envelope),
// upstream (non-2xx status), and, at the pipeline level, logical failure.
// The client performs exactly one network call per Do; retries are opt-in
// through Retrying.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/shopmcp/pkg/errmodel"
)

// DefaultTimeout applies when neither the request nor Options set one.
const DefaultTimeout = 50 * time.Second

const maxBodyBytes = 4 << 20

// Caller performs one upstream request.
type Caller interface {
	Do(ctx context.Context, req *Request) (*Envelope, error)
}

// Options configure a Client.
type Options struct {
	// BaseURL is the upstream API root, e.g. "http://localhost:3000/api".
	BaseURL string
	// Timeout is the default per-call timeout.
	Timeout time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Client is the upstream gateway client. It is safe for concurrent use.
type Client struct {
	base *url.URL
	opts Options
}

// CallOptions override per-call settings of the verb helpers.
type CallOptions struct {
	Timeout time.Duration
	Header  http.Header
}

// New builds a Client for the given base address.
func New(opts *Options) (*Client, error) {
	options := opts.withDefaults()
	if options.BaseURL == "" {
		return nil, fmt.Errorf("upstream: base URL is required")
	}
	base, err := url.Parse(options.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream: base URL %q must be http or https", options.BaseURL)
	}
	return &Client{base: base, opts: options}, nil
}

// Get issues a GET with the given query.
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts *CallOptions) (*Envelope, error) {
	return c.Do(ctx, c.request(http.MethodGet, path, query, nil, opts))
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts *CallOptions) (*Envelope, error) {
	return c.Do(ctx, c.request(http.MethodPost, path, nil, body, opts))
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts *CallOptions) (*Envelope, error) {
	return c.Do(ctx, c.request(http.MethodPut, path, nil, body, opts))
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts *CallOptions) (*Envelope, error) {
	return c.Do(ctx, c.request(http.MethodPatch, path, nil, body, opts))
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, opts *CallOptions) (*Envelope, error) {
	return c.Do(ctx, c.request(http.MethodDelete, path, nil, nil, opts))
}

func (c *Client) request(method, path string, query url.Values, body any, opts *CallOptions) *Request {
	req := &Request{Method: method, Path: path, Query: query, Body: body}
	if opts != nil {
		req.Timeout = opts.Timeout
		req.Header = opts.Header
	}
	return req
}

// Do performs exactly one HTTP call and normalizes the outcome.
func (c *Client) Do(ctx context.Context, req *Request) (*Envelope, error) {
	if req == nil {
		return nil, errmodel.System("bad_request", "nil upstream request", nil, nil)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	c.opts.Logger.Debug("upstream call",
		"method", req.Method, "path", req.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errmodel.Upstream(resp.StatusCode, errorMessage(body), errmodel.Truncate(strings.TrimSpace(string(body)), 512))
	}
	env, ok := decodeEnvelope(body)
	if !ok {
		return nil, errmodel.Network("malformed_envelope",
			fmt.Sprintf("upstream %s %s returned a body that is not a {success,data,message} envelope", req.Method, req.Path), nil)
	}
	env.Status = resp.StatusCode
	return env, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	u := *c.base
	// req.Path arrives with its segments already escaped.
	escaped := strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.TrimLeft(req.Path, "/")
	p, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, errmodel.System("build_request", "invalid upstream path", map[string]any{"path": req.Path}, err)
	}
	u.Path, u.RawPath = p, escaped
	u.RawQuery = ""
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errmodel.System("marshal_body", "encode upstream request body", nil, err)
		}
		body = bytes.NewReader(b)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errmodel.System("build_request", "build upstream request", nil, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return errmodel.Network("timeout", "upstream request timed out", nil)
	case errors.Is(err, context.Canceled):
		return errmodel.Network("canceled", "upstream request canceled", nil)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errmodel.Network("timeout", "upstream request timed out", nil)
	default:
		return errmodel.Network("connection", "upstream unreachable", err)
	}
}
