package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curatd/curatd/internal/activity"
	"github.com/curatd/curatd/internal/adapter/durable"
	"github.com/curatd/curatd/internal/adapter/graphhttp"
	curatdhttp "github.com/curatd/curatd/internal/adapter/http"
	curatdmcp "github.com/curatd/curatd/internal/adapter/mcp"
	curatdnats "github.com/curatd/curatd/internal/adapter/nats"
	"github.com/curatd/curatd/internal/adapter/natskv"
	curatdotel "github.com/curatd/curatd/internal/adapter/otel"
	"github.com/curatd/curatd/internal/adapter/poolcache"
	"github.com/curatd/curatd/internal/adapter/postgres"
	"github.com/curatd/curatd/internal/adapter/ristretto"
	"github.com/curatd/curatd/internal/adapter/scorerhttp"
	"github.com/curatd/curatd/internal/adapter/searchhttp"
	"github.com/curatd/curatd/internal/adapter/tiered"
	"github.com/curatd/curatd/internal/adapter/webhook"
	"github.com/curatd/curatd/internal/adapter/ws"
	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/logger"
	"github.com/curatd/curatd/internal/middleware"
	"github.com/curatd/curatd/internal/port/messagequeue"
	"github.com/curatd/curatd/internal/port/notifier"
	"github.com/curatd/curatd/internal/resilience"
	"github.com/curatd/curatd/internal/service"
	"github.com/curatd/curatd/internal/worker"
)

const version = "0.1.0"

func main() {
	boot := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(boot)

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "admin: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	holder, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg := holder.Get()

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Observability ---

	otelShutdown, err := curatdotel.Setup(ctx, cfg.OTel, "curatd", version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// With the exporter disabled the global meter is a no-op, so the
	// instruments cost nothing.
	metrics, err := curatdotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Policy table ---

	table := policy.DefaultTable()
	applyPolicyOverrides(table, cfg.Policies)
	if err := table.Validate(); err != nil {
		return fmt.Errorf("policy table: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// Run migrations
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := curatdnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	idemKV, err := queue.KeyValue(ctx, "idempotency", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}
	poolKV, err := queue.KeyValue(ctx, "reviewer_pools", cfg.Cache.PoolTTL)
	if err != nil {
		return fmt.Errorf("reviewer pool bucket: %w", err)
	}

	// Reviewer pool cache: in-process L1 over the shared NATS KV L2.
	l1, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	poolDir := poolcache.New(
		postgres.NewDirectory(pool),
		tiered.New(l1, natskv.New(poolKV), cfg.Cache.PoolTTL),
		cfg.Cache.PoolTTL,
	)

	// --- Outbound clients ---

	scorerBreaker := resilience.NewBreaker("scorer", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	searchBreaker := resilience.NewBreaker("search", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	graphBreaker := resilience.NewBreaker("graph", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	scorerClient := scorerhttp.NewClient(cfg.Scorer.URL, cfg.Scorer.APIKey)
	scorerClient.SetBreaker(scorerBreaker)
	searchClient := searchhttp.NewClient(cfg.Search.URL, cfg.Search.APIKey)
	searchClient.SetBreaker(searchBreaker)
	graphClient := graphhttp.NewClient(cfg.Graph.URL, cfg.Graph.APIKey)
	graphClient.SetBreaker(graphBreaker)

	alerter := webhook.NewAlerter(cfg.Alert.WebhookURL)

	// --- Notifiers ---

	var dispatchers []notifier.Dispatcher
	var enabledEvents []string
	for _, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}
		d, err := notifier.New(nc.Name, nc.Settings)
		if err != nil {
			return fmt.Errorf("notifier %q: %w", nc.Name, err)
		}
		dispatchers = append(dispatchers, d)
		enabledEvents = append(enabledEvents, nc.Events...)
	}
	notifySvc := service.NewNotificationService(dispatchers, enabledEvents)
	slog.Info("notifiers configured", "count", len(dispatchers), "available", notifier.Available())

	// --- Workflow ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	journal := postgres.NewEventStore(pool)

	exec := worker.NewExecutor(table, worker.NewPools(cfg.Workers))
	activity.Register(exec, activity.Deps{
		Scorer:               scorerClient,
		Store:                store,
		Directory:            poolDir,
		Search:               searchClient,
		Graph:                graphClient,
		Notifier:             notifySvc,
		MaxActiveAssignments: cfg.Review.MaxActiveAssignments,
	})

	engine := durable.NewEngine(journal, store, exec)

	orchestratorSvc := service.NewOrchestratorService(store, journal, engine, queue, hub, alerter)
	orchestratorSvc.SetMetrics(metrics)
	reviewSvc := service.NewReviewService(store, engine, queue, hub, cfg.Review)
	reviewSvc.SetMetrics(metrics)

	// Resume after the workflow is registered, before traffic arrives.
	resumed, err := engine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume instances: %w", err)
	}
	slog.Info("instances resumed", "count", resumed)

	repairSvc := service.NewRepairService(store, journal, queue, searchClient, graphClient, alerter, cfg.Repair.MaxAttempts)
	if err := repairSvc.Start(ctx); err != nil {
		return fmt.Errorf("repair consumer: %w", err)
	}

	janitorSvc := service.NewJanitorService(store, journal, queue, cfg.Janitor)
	if err := janitorSvc.Start(); err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	// Relay repair completions to dashboard clients.
	cancelRepairFeed, err := queue.Subscribe(ctx, messagequeue.SubjectRepairDone,
		func(ctx context.Context, _ string, data []byte) error {
			hub.BroadcastEvent(ctx, ws.EventRepairDone, json.RawMessage(data))
			return nil
		})
	if err != nil {
		return fmt.Errorf("repair feed: %w", err)
	}
	defer cancelRepairFeed()

	// --- MCP ---

	var mcpSrv *curatdmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = curatdmcp.NewServer(
			curatdmcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "curatd", Version: version, APIKey: cfg.MCP.APIKey},
			curatdmcp.ServerDeps{
				Pending:   reviewSvc,
				Statuses:  reviewSvc,
				Decisions: reviewSvc,
				Attention: reviewSvc,
				Policies:  reviewSvc,
			},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
	}

	// --- HTTP ---

	handlers := &curatdhttp.Handlers{
		Reviews: reviewSvc,
		Repairs: repairSvc,
	}

	limiter := middleware.NewRateLimiter(50, 100)
	defer limiter.StartCleanup(time.Minute, 10*time.Minute)()

	r := chi.NewRouter()

	// RequestID must run before the access logger so log lines carry the
	// correlation ID.
	r.Use(curatdhttp.SecurityHeaders)
	r.Use(curatdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(curatdhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(limiter.Handler)
	if cfg.OTel.Enabled {
		r.Use(curatdotel.HTTPMiddleware("curatd"))
	}
	r.Use(middleware.Idempotency(idemKV))

	// Health endpoint with live component status
	r.Get("/health", healthHandler(pool, queue, scorerBreaker, searchBreaker, graphBreaker))

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWS)

	// API routes
	curatdhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SIGHUP re-reads the config file. Only the log level and the policy
	// template for future instances change at runtime; connections, ports
	// and running instances keep their startup values.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload rejected", "error", err)
				continue
			}
			fresh := holder.Get()
			logger.SetLevel(fresh.Logging.Level)
			reviewSvc.SetPolicy(fresh.Review)
			slog.Info("config reloaded", "path", holder.Path(), "log_level", fresh.Logging.Level)
		}
	}()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop intake first, then let running instances checkpoint, then drain.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Error("mcp shutdown", "error", err)
		}
	}
	janitorSvc.Stop()
	repairSvc.Stop()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		slog.Error("engine shutdown", "error", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Error("queue drain", "error", err)
	}
	return nil
}

// applyPolicyOverrides merges configured overrides into the shipped policy
// table. Zero-valued fields keep the default; unknown task names are logged
// and skipped so a typo cannot silently strip a policy.
func applyPolicyOverrides(table policy.Table, overrides map[string]config.PolicyOverride) {
	for name, ov := range overrides {
		task := policy.TaskType(name)
		p, ok := table[task]
		if !ok {
			slog.Warn("policy override for unknown task", "task", name)
			continue
		}
		if ov.Class != "" {
			p.Class = policy.QueueClass(ov.Class)
		}
		if ov.Timeout > 0 {
			p.Timeout = ov.Timeout
		}
		if ov.MaxAttempts > 0 {
			p.MaxAttempts = ov.MaxAttempts
		}
		if ov.InitialInterval > 0 {
			p.InitialInterval = ov.InitialInterval
		}
		if ov.BackoffCoefficient > 0 {
			p.BackoffCoefficient = ov.BackoffCoefficient
		}
		if ov.MaxInterval > 0 {
			p.MaxInterval = ov.MaxInterval
		}
		table[task] = p
	}
}

// healthHandler returns an http.HandlerFunc that reports live component
// health: a database ping, the queue connection and every breaker state.
func healthHandler(pool *pgxpool.Pool, queue *curatdnats.Queue, breakers ...*resilience.Breaker) http.HandlerFunc {
	type healthStatus struct {
		Status   string            `json:"status"`
		Postgres string            `json:"postgres"`
		NATS     string            `json:"nats"`
		Breakers map[string]string `json:"breakers"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := healthStatus{
			Status:   "ok",
			Postgres: "ok",
			NATS:     "ok",
			Breakers: make(map[string]string, len(breakers)),
		}
		if err := pool.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Postgres = "down"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "down"
		}
		for _, b := range breakers {
			status.Breakers[b.Name()] = b.State()
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
