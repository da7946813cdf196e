package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/do/v2"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/config"
	"github.com/kevinaud/rpc-streaming-prototype/internal/feed"
	"github.com/kevinaud/rpc-streaming-prototype/internal/logging"
	"github.com/kevinaud/rpc-streaming-prototype/internal/mock"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Create a demo session fed with sample proposals")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *mockMode {
		cfg.Mock.Enabled = true
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	injector := setupDI(cfg, log)

	srv, err := do.Invoke[*ws.Server](injector)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	svc := do.MustInvoke[*service.Service](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Mock.Enabled {
		gen := mock.NewGenerator(svc, cfg.Mock.Interval, log.Named("mock"))
		id := gen.Start(ctx)
		log.Info("mock mode enabled", zap.String("session_id", id), zap.Duration("interval", cfg.Mock.Interval))
	}

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	return shutdown(cfg, injector, httpServer)
}

// shutdown stops accepting requests, ends every open stream and drains the
// activity feed, collecting every failure.
func shutdown(cfg *config.Config, injector do.Injector, httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var result *multierror.Error

	// Streams are hijacked connections, so Shutdown does not wait for them.
	do.MustInvoke[*broadcast.Broadcaster](injector).Close()

	if err := httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}

	// Flush queued feed events before the connection drains.
	do.MustInvoke[*service.Service](injector).Close()

	if pub := do.MustInvoke[*feed.Publisher](injector); pub != nil {
		if err := pub.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("activity feed: %w", err))
		}
	}

	return result.ErrorOrNil()
}
