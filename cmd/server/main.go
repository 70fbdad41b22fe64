// Command server runs the askgs employee-question service.
//
// Configuration is read from a YAML file (-config, ASKGS_CONFIG,
// ./config.yaml or /etc/askgs/config.yaml) with ASKGS_* environment
// overrides. See pkg/config for every setting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knikam3027/jnj/pkg/config"
	"github.com/knikam3027/jnj/pkg/debug"
	transporthttp "github.com/knikam3027/jnj/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	port := flag.Int("port", 0, "listen port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := transporthttp.NewServer(app.engine, app.store,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithAdapterConfig(app.adapterConfig(cfg)),
	)

	slog.Info("askgs configured",
		"port", cfg.Server.Port,
		"gateway", cfg.Gateway.Provider,
		"answer_engine", cfg.AnswerEngine.Type,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"phrase_table", app.classifier.Version(),
		"debug", debug.Categories(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if app.memory != nil {
		g.Go(func() error {
			sweep(gctx, cfg.History.SweepInterval, func() {
				if n := app.memory.Sweep(cfg.History.IdleTTL); n > 0 {
					debug.Log("session", "swept idle sessions", "count", n)
				}
			})
			return nil
		})
	}
	if app.limiter != nil {
		g.Go(func() error {
			sweep(gctx, cfg.History.SweepInterval, func() {
				app.limiter.Sweep(cfg.History.IdleTTL)
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// sweep calls fn every interval until ctx is done.
func sweep(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
