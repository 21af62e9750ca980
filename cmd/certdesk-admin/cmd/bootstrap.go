package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/certdesk/admin-console/internal/adapter/outbound/adminapi"
	"github.com/certdesk/admin-console/internal/adapter/outbound/memory"
	"github.com/certdesk/admin-console/internal/adapter/outbound/redis"
	"github.com/certdesk/admin-console/internal/adapter/outbound/sqlite"
	"github.com/certdesk/admin-console/internal/adapter/outbound/state"
	"github.com/certdesk/admin-console/internal/config"
	"github.com/certdesk/admin-console/internal/domain/session"
	"github.com/certdesk/admin-console/internal/service"
)

// app is the wired console: session, API client, query engine and admin
// service, plus where command output goes.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    session.SlotStore
	sessions *service.SessionService
	registry *prometheus.Registry
	metrics  *service.Metrics
	client   *adminapi.Client
	engine   *service.QueryEngine
	admin    *service.AdminService

	in     *bufio.Reader
	out    io.Writer
	format string

	shutdownTracing func(context.Context) error
	closeOnce       sync.Once
}

// loadConfig loads and validates configuration, applying CLI flag overrides
// before validation.
func loadConfig() (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}

	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if ephemeral {
		cfg.Session.Backend = config.BackendMemory
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// withApp builds the app for cmd, runs fn and tears the app down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	switch outputFormat {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", outputFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	a.format = outputFormat
	return fn(ctx, a)
}

// newApp wires every component from cfg. Logs and traces go to errOut.
func newApp(ctx context.Context, cfg *config.Config, in io.Reader, out, errOut io.Writer) (*app, error) {
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	logger.Debug("log level configured", "level", cfg.LogLevel)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Debug("loaded config", "file", configFile)
	}

	store, err := openSlotStore(ctx, cfg.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	a := &app{
		cfg:             cfg,
		logger:          logger,
		store:           store,
		in:              bufio.NewReader(in),
		out:             out,
		format:          formatTable,
		shutdownTracing: func(context.Context) error { return nil },
	}

	a.sessions = service.NewSessionService(store, logger)
	a.sessions.Initialize(ctx)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = service.NewMetrics(a.registry)

	clientOpts := []adminapi.Option{
		adminapi.WithTimeout(cfg.APITimeout()),
		adminapi.WithLogger(logger),
		adminapi.WithRequestMetrics(a.metrics.APIRequestDuration),
	}
	if cfg.Session.ClearOnUnauthorized {
		sessions := a.sessions
		clientOpts = append(clientOpts, adminapi.WithUnauthorizedHandler(func(token string) {
			if sessions.ClearIfCurrent(context.Background(), token) {
				logger.Warn("the API rejected the stored session; logged out")
			}
		}))
	}
	if cfg.Telemetry.TraceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		a.shutdownTracing = tp.Shutdown
		clientOpts = append(clientOpts, adminapi.WithTracer(tp.Tracer("certdesk-admin")))
	}

	a.client, err = adminapi.NewClient(cfg.API.BaseURL, a.sessions, clientOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engineOpts := []service.QueryEngineOption{service.WithEngineMetrics(a.metrics)}
	if d := cfg.KeepUnusedFor(); d > 0 {
		engineOpts = append(engineOpts, service.WithKeepUnusedFor(d))
	}
	a.engine = service.NewQueryEngine(logger, engineOpts...)

	a.admin = service.NewAdminService(a.client, a.sessions, a.engine, logger,
		service.WithDefaultPageSize(cfg.Cache.DefaultPageSize))

	return a, nil
}

// Close stops background work and releases storage. Safe to call more
// than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		a.admin.Close()
		a.engine.Close()
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close session storage", "error", err)
		}
	})
}

// openSlotStore opens the configured session backend.
func openSlotStore(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (session.SlotStore, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return state.NewFileSlotStore(cfg.Path, logger), nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.Path, logger)
	case config.BackendRedis:
		return redis.Dial(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix, logger)
	case config.BackendMemory:
		return memory.NewSlotStore(), nil
	default:
		return nil, errors.New("unknown session backend " + cfg.Backend)
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelWarn for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
