// Package pipeline runs one tool invocation from raw arguments to a ToolResult.
//
// An invocation moves through a fixed sequence of states and never revisits one:
//
//	Received -> InputValidated -> AuthChecked -> UpstreamCalled -> OutputValidated -> Formatted
//
// Any failure jumps straight to Formatted with an error result. The only
// suspension point is the upstream call; everything else is synchronous.
// Pipelines hold no per-invocation state and are safe for concurrent use.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/shopmcp/pkg/auth"
	"github.com/wilhg/shopmcp/pkg/contract"
	"github.com/wilhg/shopmcp/pkg/errmodel"
	"github.com/wilhg/shopmcp/pkg/result"
	"github.com/wilhg/shopmcp/pkg/upstream"
)

// Timeouts are the per-class upstream timeouts.
type Timeouts struct {
	Default time.Duration
	Search  time.Duration
	Cart    time.Duration
}

// For returns the timeout of a class, falling back to Default.
func (t Timeouts) For(class contract.TimeoutClass) time.Duration {
	switch class {
	case contract.TimeoutSearch:
		if t.Search > 0 {
			return t.Search
		}
	case contract.TimeoutCart:
		if t.Cart > 0 {
			return t.Cart
		}
	}
	return t.Default
}

// Options configure a Pipeline.
type Options struct {
	Registry *contract.Registry
	Caller   upstream.Caller
	Timeouts Timeouts
	Logger   *slog.Logger
	// Now is the clock used for credential expiry.
	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Timeouts.Default <= 0 {
		opts.Timeouts.Default = upstream.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// Invocation is one request to run a tool.
type Invocation struct {
	// ID correlates logs, spans and the upstream X-Request-ID. Generated when empty.
	ID        string
	Tool      string
	Arguments map[string]any
}

// Pipeline binds a registry to an upstream caller.
type Pipeline struct {
	opts   Options
	tracer trace.Tracer
}

// New builds a Pipeline. Registry and Caller are required.
func New(opts *Options) (*Pipeline, error) {
	o := opts.withDefaults()
	if o.Registry == nil {
		return nil, fmt.Errorf("pipeline: registry is required")
	}
	if o.Caller == nil {
		return nil, fmt.Errorf("pipeline: upstream caller is required")
	}
	return &Pipeline{opts: o, tracer: otel.Tracer("shopmcp/pipeline")}, nil
}

// Registry returns the registry the pipeline serves.
func (p *Pipeline) Registry() *contract.Registry { return p.opts.Registry }

// Invoke runs inv to completion and returns exactly one ToolResult.
// It never returns an error and never panics; every failure becomes an error result.
func (p *Pipeline) Invoke(ctx context.Context, inv Invocation) (res result.ToolResult) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "Pipeline.Invoke", trace.WithAttributes(
		attribute.String("tool.name", inv.Tool),
		attribute.String("invocation.id", inv.ID),
	))

	var (
		out  map[string]any
		err  error
		info callInfo
	)
	defer func() {
		if r := recover(); r != nil {
			err = errmodel.System("internal", fmt.Sprintf("tool %s panicked: %v", inv.Tool, r), nil, nil)
			res = result.Failure(err)
		}
		kind := errmodel.KindOf(err)
		span.SetAttributes(
			attribute.String("tool.kind", string(kind)),
			attribute.Bool("tool.is_error", res.IsError),
			attribute.Int("upstream.status", info.status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
		}
		span.End()

		attrs := []any{
			"tool", inv.Tool,
			"invocation_id", inv.ID,
			"duration", time.Since(start),
			"upstream_status", info.status,
		}
		if info.subject != "" {
			attrs = append(attrs, "subject", info.subject)
		}
		if err != nil {
			p.opts.Logger.Warn("tool invocation failed", append(attrs, "kind", string(kind), "error", err.Error())...)
			return
		}
		p.opts.Logger.Info("tool invocation", attrs...)
	}()

	out, err = p.run(ctx, inv, &info)
	if err != nil {
		return result.Failure(err)
	}
	return result.Success(out)
}

type callInfo struct {
	status  int
	subject string
}

func (p *Pipeline) run(ctx context.Context, inv Invocation, info *callInfo) (map[string]any, error) {
	c, err := p.opts.Registry.Lookup(inv.Tool)
	if err != nil {
		return nil, err
	}

	// Received: copy so the caller's map is never modified.
	raw := make(map[string]any, len(inv.Arguments))
	for k, v := range inv.Arguments {
		raw[k] = v
	}
	cred, _ := auth.Extract(raw)
	info.subject = cred.Subject

	// InputValidated
	args, err := c.PrepareInput(raw)
	if err != nil {
		return nil, errmodel.InvalidInput(c.Name, err)
	}

	// AuthChecked
	if err := auth.Enforce(c, cred, p.opts.Now()); err != nil {
		return nil, err
	}

	// UpstreamCalled
	req, err := BuildRequest(c, args, cred)
	if err != nil {
		return nil, err
	}
	req.Timeout = p.opts.Timeouts.For(c.Route.Timeout)
	req.Header.Set("X-Request-ID", inv.ID)
	env, err := p.opts.Caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	info.status = env.Status

	// OutputValidated
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "upstream reported failure"
		}
		return nil, errmodel.Logical(c.Name, fmt.Sprintf("%s failed: %s", c.Name, msg))
	}
	if !env.HasData() && !c.Output.AllowEmptyData {
		return nil, errmodel.Logical(c.Name, fmt.Sprintf("%s: upstream response carried no data", c.Name))
	}
	out, err := shape(c, args, env)
	if err != nil {
		return nil, err
	}
	if err := c.CheckOutput(out); err != nil {
		return nil, errmodel.Logical(c.Name, fmt.Sprintf("%s: upstream data does not match the declared output: %v", c.Name, err))
	}
	return out, nil
}

// shape maps envelope data and request arguments into the declared output.
func shape(c *contract.ToolContract, args map[string]any, env *upstream.Envelope) (map[string]any, error) {
	out := map[string]any{}
	m := c.Output
	switch data := env.Data.(type) {
	case nil:
	case map[string]any:
		if _, wrapped := data[m.Wrap]; m.Wrap == "" || wrapped {
			for k, v := range data {
				out[k] = v
			}
		} else {
			out[m.Wrap] = data
		}
	default:
		if m.Wrap == "" {
			return nil, errmodel.Logical(c.Name, fmt.Sprintf("%s: upstream data is %T, want an object", c.Name, data))
		}
		out[m.Wrap] = data
	}

	for _, name := range m.Echo {
		if _, exists := out[name]; exists {
			continue
		}
		if v, ok := args[name]; ok {
			out[name] = v
		}
	}
	if m.FieldsKey != "" {
		fields := []string{}
		for _, name := range c.Route.Body {
			if _, ok := args[name]; ok {
				fields = append(fields, name)
			}
		}
		sort.Strings(fields)
		out[m.FieldsKey] = fields
	}
	if c.IsWrite() && env.Message != "" {
		out["message"] = env.Message
	}
	return out, nil
}
