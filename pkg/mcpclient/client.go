// Package mcpclient is a thin MCP client for talking to a running gateway.
// It backs the probe mode of cmd/shopmcp and the end-to-end transport tests.
package mcpclient

import (
	"context"
	"fmt"
	"net/http"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport selects how the client connects.
type Transport string

const (
	Streamable Transport = "streamable"
	SSE        Transport = "sse"
)

// Options configure Dial.
type Options struct {
	Transport Transport
	// Token, when set, is sent as "Authorization: Bearer <token>" on every HTTP request.
	Token      string
	HTTPClient *http.Client
}

// Client is a connected MCP session.
type Client struct {
	session *mcp.ClientSession
}

// Dial connects to endpoint, e.g. "http://localhost:8080/mcp" or ".../sse".
// The session's streams are bound to ctx, so ctx must outlive the session:
// cancelling it right after Dial returns ends the session.
func Dial(ctx context.Context, endpoint string, opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if o.Token != "" {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c := *hc
		c.Transport = &bearerTransport{token: o.Token, next: base}
		hc = &c
	}

	var t mcp.Transport
	switch o.Transport {
	case SSE:
		t = &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: hc}
	case Streamable, "":
		t = &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: hc, MaxRetries: -1}
	default:
		return nil, fmt.Errorf("mcpclient: unknown transport %q", o.Transport)
	}

	cli := mcp.NewClient(&mcp.Implementation{Name: "shopmcp-probe", Version: "1.0.0"}, nil)
	session, err := cli.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect %s: %w", endpoint, err)
	}
	return &Client{session: session}, nil
}

// ListTools returns every tool the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var out []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Tools...)
		if res.NextCursor == "" {
			return out, nil
		}
		params.Cursor = res.NextCursor
	}
}

// CallTool invokes one tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// Close ends the session.
func (c *Client) Close() error { return c.session.Close() }

type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (b *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}
