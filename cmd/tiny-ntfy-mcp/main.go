package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/config"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/dispatch"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/eventbus"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/gate"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/ntfy"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/sequence"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/tools"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Missing or conflicting configuration is fatal: the process must not
	// accept publish calls it can never deliver.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	log := logx.New(cfg.LogLevel)
	log.Info("starting",
		logx.String("version", tools.Version),
		logx.String("url", cfg.URL),
		logx.String("topic", config.Redact(cfg.Topic)),
		logx.String("auth", cfg.AuthMode()),
		logx.Bool("dry_run", cfg.DryRun),
	)

	g := gate.New(cfg.GateOverride)
	reg := sequence.NewRegistry(cfg.ForcedSequenceID)
	bus := eventbus.New()
	client := ntfy.NewClient(cfg, log.With(logx.String("comp", "ntfy")))

	disp := dispatch.New(dispatch.Config{}, g, reg, client, bus, log)
	disp.Start(ctx)

	srv, err := tools.New(cfg, g, reg, disp, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Error("stdio server exited", logx.Err(err))
	}

	// Best-effort flush of queued notifications; shutdown is typically the
	// MCP client exiting, so keep it short.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	disp.Stop(stopCtx)
	stopCancel()
}
