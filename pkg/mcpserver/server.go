// Package mcpserver exposes the tool pipeline over MCP.
//
// One Dispatcher serves two entry points: "/sse" (with "/sse/message") binds
// the long-lived SSE transport, and "/mcp" binds the Streamable HTTP transport
// in stateless mode for one-shot calls: no session is kept between requests and
// a bare tools/call is answered without a prior initialize. Both publish the
// same tool catalog and run every call through the same pipeline. Other paths
// get a compact 404 error envelope.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/shopmcp/pkg/auth"
	"github.com/wilhg/shopmcp/pkg/contract"
	"github.com/wilhg/shopmcp/pkg/errmodel"
	"github.com/wilhg/shopmcp/pkg/pipeline"
	"github.com/wilhg/shopmcp/pkg/result"
)

// Dispatcher binds a pipeline to the MCP HTTP transports.
type Dispatcher struct {
	pipe *pipeline.Pipeline
	opts Options

	server  *mcp.Server
	handler http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// New builds a Dispatcher publishing every contract of the pipeline's registry.
func New(p *pipeline.Pipeline, opts *Options) (*Dispatcher, error) {
	if p == nil {
		return nil, fmt.Errorf("mcpserver: pipeline is required")
	}
	if p.Registry().Len() == 0 {
		return nil, fmt.Errorf("mcpserver: registry has no tools")
	}
	d := &Dispatcher{pipe: p, opts: opts.withDefaults()}
	d.server = d.newServer(nil)
	d.handler = d.mount()
	return d, nil
}

// Handler returns the HTTP handler serving every path.
func (d *Dispatcher) Handler() http.Handler { return d.handler }

// newServer builds an MCP server with the full catalog. sessionHeader holds
// the headers of the request that opened an SSE session; tool calls on that
// session read the bearer credential from it.
func (d *Dispatcher) newServer(sessionHeader http.Header) *mcp.Server {
	srv := mcp.NewServer(d.opts.Implementation, &mcp.ServerOptions{
		Logger:   d.opts.Logger,
		HasTools: true,
	})
	for _, c := range d.pipe.Registry().Contracts() {
		srv.AddTool(toolFor(c), d.toolHandler(c.Name, sessionHeader))
	}
	return srv
}

func (d *Dispatcher) toolHandler(name string, sessionHeader http.Header) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return callResult(result.Failure(errmodel.InvalidInput(name, fmt.Errorf("arguments must be a JSON object: %w", err)))), nil
			}
			if args == nil {
				args = map[string]any{}
			}
		}
		header := sessionHeader
		if req.Extra != nil && req.Extra.Header != nil {
			header = req.Extra.Header
		}
		auth.Inject(args, auth.FromHeader(header))
		return callResult(d.pipe.Invoke(ctx, pipeline.Invocation{Tool: name, Arguments: args})), nil
	}
}

func (d *Dispatcher) mount() http.Handler {
	sse := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return d.newServer(r.Header.Clone())
	}, nil)
	stream := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return d.server
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
		Logger:       d.opts.Logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/sse", sse)
	mux.Handle("/sse/message", sse)
	mux.Handle("/mcp", stream)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found", "no route for "+r.URL.Path, map[string]any{"path": r.URL.Path}))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: d.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	})
	return otelhttp.NewHandler(c.Handler(mux), "shopmcp")
}

// ListenAndServe runs an HTTP server until ctx is cancelled or the server stops.
func (d *Dispatcher) ListenAndServe(ctx context.Context) error {
	d.httpServerMu.Lock()
	if d.httpServer != nil {
		addr := d.httpServer.Addr
		d.httpServerMu.Unlock()
		return fmt.Errorf("mcpserver: already running on %s", addr)
	}
	srv := &http.Server{Addr: d.opts.Addr, Handler: d.handler}
	d.httpServer = srv
	d.httpServerMu.Unlock()
	defer func() {
		d.httpServerMu.Lock()
		if d.httpServer == srv {
			d.httpServer = nil
		}
		d.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		d.opts.Logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.opts.ShutdownTimeout)
		defer cancel()
		if err := d.Shutdown(shutdownCtx); err != nil {
			d.opts.Logger.Warn("shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the HTTP server if it is running.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.httpServerMu.Lock()
	srv := d.httpServer
	d.httpServer = nil
	d.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func toolFor(c *contract.ToolContract) *mcp.Tool {
	openWorld := true
	t := &mcp.Tool{
		Name:        c.Name,
		Title:       c.Title,
		Description: c.Description,
		InputSchema: json.RawMessage(c.InputSchema),
		Meta: mcp.Meta{
			"agent":         c.Meta.Agent,
			"category":      c.Meta.Category,
			"auth_required": c.Meta.AuthRequired,
		},
		Annotations: &mcp.ToolAnnotations{
			Title:          c.Title,
			ReadOnlyHint:   c.Hints.ReadOnly,
			IdempotentHint: c.Hints.Idempotent,
			OpenWorldHint:  &openWorld,
		},
	}
	if !c.Hints.ReadOnly {
		destructive := c.Hints.Destructive
		t.Annotations.DestructiveHint = &destructive
	}
	if len(c.OutputSchema) > 0 {
		t.OutputSchema = json.RawMessage(c.OutputSchema)
	}
	return t
}

// callResult converts a pipeline result. Error results carry text only: their
// structured form does not match the tool's published output schema.
func callResult(res result.ToolResult) *mcp.CallToolResult {
	out := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
		IsError: res.IsError,
	}
	if !res.IsError {
		out.StructuredContent = res.StructuredContent
	}
	return out
}
