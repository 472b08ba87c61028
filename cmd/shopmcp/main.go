package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/wilhg/shopmcp/pkg/config"
	"github.com/wilhg/shopmcp/pkg/eval"
	"github.com/wilhg/shopmcp/pkg/mcpclient"
	"github.com/wilhg/shopmcp/pkg/mcpserver"
	"github.com/wilhg/shopmcp/pkg/otel"
	"github.com/wilhg/shopmcp/pkg/pipeline"
	"github.com/wilhg/shopmcp/pkg/tools"
	"github.com/wilhg/shopmcp/pkg/upstream"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "shopmcp: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("shopmcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	probe := fs.String("probe", "", "list the tools of a running gateway at this MCP URL and exit")
	probeSSE := fs.Bool("probe-sse", false, "use the SSE transport for -probe")
	probeToken := fs.String("probe-token", "", "bearer token sent by -probe")
	evalDir := fs.String("eval", "", "replay the recorded fixtures in this directory and exit")
	cf := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "shopmcp %s (commit=%s, date=%s)\n", version, commit, date)
		return nil
	}
	if *probe != "" {
		transport := mcpclient.Streamable
		if *probeSSE {
			transport = mcpclient.SSE
		}
		return runProbe(ctx, *probe, &mcpclient.Options{Transport: transport, Token: *probeToken}, stdout)
	}

	if *evalDir != "" {
		return runEval(ctx, *evalDir, stdout)
	}

	cfg, err := config.Load(cf)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	shutdownOTel, err := otel.Init(ctx, otel.Config{
		ServiceVersion: version,
		UseStdout:      cfg.TraceStdout,
		Writer:         stderr,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	d, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	logger.Info("gateway starting",
		"version", version,
		"addr", cfg.Addr,
		"api_base_url", cfg.APIBaseURL,
		"retry_reads", cfg.RetryReads,
	)
	return g.Wait()
}

// buildGateway assembles registry, upstream client, pipeline and dispatcher.
func buildGateway(cfg config.Config, logger *slog.Logger) (*mcpserver.Dispatcher, error) {
	reg, err := tools.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	client, err := upstream.New(&upstream.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.DefaultTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	var caller upstream.Caller = client
	if cfg.RetryReads {
		caller = upstream.NewRetrying(client, upstream.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay,
		}, logger)
	}

	p, err := pipeline.New(&pipeline.Options{
		Registry: reg,
		Caller:   caller,
		Timeouts: pipeline.Timeouts{
			Default: cfg.DefaultTimeout,
			Search:  cfg.SearchTimeout,
			Cart:    cfg.CartTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return mcpserver.New(p, &mcpserver.Options{
		Implementation: &mcp.Implementation{Name: "shopmcp", Title: "Shop MCP Gateway", Version: version},
		Addr:           cfg.Addr,
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger,
	})
}

func runProbe(ctx context.Context, endpoint string, opts *mcpclient.Options, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	c, err := mcpclient.Dial(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ts, err := c.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tAUTH\tREAD-ONLY")
	for _, t := range ts {
		readOnly := t.Annotations != nil && t.Annotations.ReadOnlyHint
		fmt.Fprintf(tw, "%s\t%v\t%v\t%v\n", t.Name, t.Meta["category"], t.Meta["auth_required"], readOnly)
	}
	return tw.Flush()
}

func runEval(ctx context.Context, dir string, stdout io.Writer) error {
	rep, err := eval.Evaluate(ctx, os.DirFS(dir), ".", nil)
	if err != nil {
		return err
	}
	for _, d := range rep.Details {
		fmt.Fprintln(stdout, "FAIL", d)
	}
	fmt.Fprintf(stdout, "passed %d/%d (score %.2f)\n", rep.Passed, rep.Total, rep.Score)
	if rep.Passed != rep.Total {
		return fmt.Errorf("%d fixture(s) failed", rep.Total-rep.Passed)
	}
	return nil
}
