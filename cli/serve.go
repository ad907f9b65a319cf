package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/tooldispatch/bus"
	"github.com/petal-labs/tooldispatch/config"
	petalotel "github.com/petal-labs/tooldispatch/otel"
	"github.com/petal-labs/tooldispatch/server"
	"github.com/petal-labs/tooldispatch/sse"
	"github.com/petal-labs/tooldispatch/tool"
)

const shutdownTimeout = 30 * time.Second

// eventBufferSize is the per-subscriber buffer of the invocation event bus.
const eventBufferSize = 4096

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the tools directory and serve the dispatch API",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", config.DefaultPort, "Listen port (env PORT)")
	cmd.Flags().String("host", config.DefaultHost, "Listen host")
	cmd.Flags().String("tools-dir", config.DefaultToolsDir, "Directory of tool units")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Int64("max-body-bytes", config.DefaultMaxBodyBytes, "Request body limit in bytes")
	cmd.Flags().String("journal", "", "Path to the SQLite invocation journal (disabled when empty)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP traces endpoint")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := petalotel.NewTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return exitError(exitConfig, "initializing tracing: %v", err)
	}
	if tp != nil {
		otelapi.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	toolObserver, err := petalotel.NewToolObserver(
		otelapi.GetMeterProvider().Meter("tooldispatch/tool"),
		otelapi.GetTracerProvider().Tracer("tooldispatch/tool"),
	)
	if err != nil {
		return fmt.Errorf("initializing tool observability: %w", err)
	}
	eb := bus.NewMemBus(bus.MemBusConfig{SubscriberBufferSize: eventBufferSize})
	defer closeEventBus(eb, logger)
	observers := tool.Observers{toolObserver, bus.NewObserver(eb)}

	var store bus.EventStore
	if cfg.Journal.Path != "" {
		j, err := openJournal(cfg.Journal, eb, logger.With("component", "journal"))
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		defer j.close()
		store = j.store
	}

	registry, err := tool.LoadAll(cfg.ToolsDir, tool.LoadOptions{
		Logger:   logger.With("component", "registry"),
		Observer: observers,
	})
	if err != nil {
		return exitError(exitConfig, "loading tools: %v", err)
	}

	events := sse.NewHandler(store, eb)
	srv := server.NewServer(server.ServerConfig{
		Registry:   registry,
		Observer:   observers,
		CORSOrigin: cfg.CORSOrigin,
		MaxBody:    cfg.MaxBodyBytes,
		Logger:     logger.With("component", "server"),
		Events:     events,
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return exitError(exitRuntime, "listen on %s: %v", cfg.Addr(), err)
	}
	// No write timeout: tool calls run until their handlers return.
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open /events streams would otherwise hold Shutdown until its timeout. The
	// bus stays open until in-flight calls have been journaled.
	httpServer.RegisterOnShutdown(events.Close)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	logger.Info("tool dispatcher listening",
		"addr", ln.Addr().String(),
		"tools_dir", cfg.ToolsDir,
		"tools", registry.Names(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// journal bundles the invocation journal pieces started by serve.
type journal struct {
	store  *bus.SQLiteEventStore
	bus    *bus.MemBus
	pruner *bus.PruneScheduler
	wg     sync.WaitGroup
}

// openJournal persists every event published on eb to the SQLite journal.
func openJournal(cfg config.JournalConfig, eb *bus.MemBus, logger *slog.Logger) (*journal, error) {
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
		DSN:          cfg.Path,
		RetentionAge: cfg.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	pruner, err := bus.NewPruneScheduler(bus.PruneSchedulerConfig{
		Store:    store,
		Schedule: cfg.PruneSchedule,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("journal prune schedule: %w", err)
	}

	j := &journal{
		store:  store,
		bus:    eb,
		pruner: pruner,
	}
	sub := j.bus.SubscribeAll()
	subscriber := bus.NewStoreSubscriber(store, logger)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		subscriber.Drain(sub)
	}()
	pruner.Start()
	return j, nil
}

// closeEventBus closes eb and reports deliveries it had to skip.
func closeEventBus(eb *bus.MemBus, logger *slog.Logger) {
	_ = eb.Close()
	if n := eb.Dropped(); n > 0 {
		logger.Warn("event bus dropped invocation events for slow subscribers", "dropped", n)
	}
}

// close stops pruning, flushes buffered events and closes the store.
func (j *journal) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = j.pruner.Stop(ctx)
	_ = j.bus.Close()
	j.wg.Wait()
	_ = j.store.Close()
}
