package main

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/database"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/notify"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	cfg.Observability.OTel.ServiceVersion = version
	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel, a.log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		if err := observability.RegisterDBStats(registry, a.conns.Primary(), "primary"); err != nil {
			return err
		}
	}

	notifiers := notify.Multi{notify.NewLogNotifier(a.log)}
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.closer = append(a.closer, redisClient.Close)
		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient, cfg.Redis.Channel))
	}

	auditStore := audit.NewDBLogger(a.conns.Primary())
	manager, err := a.manager(
		rbac.WithReadDB(a.conns.Replica()),
		rbac.WithMetrics(metrics),
		rbac.WithNotifier(notifiers),
		rbac.WithAuditLogger(audit.NewMultiLogger(auditStore, audit.NewLogrusLogger(a.log))),
	)
	if err != nil {
		return err
	}
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	manager.Handlers().SetAuditReader(auditStore)

	var limiter middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limitCfg := middleware.PerMinuteRateLimitConfig(cfg.Server.RateLimit)
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, limitCfg, "")
		} else {
			local := middleware.NewRateLimiter(limitCfg)
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	router := mux.NewRouter()
	router.Use(
		observability.RecoveryMiddleware(a.log),
		middleware.RequestID(a.log),
	)
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	router.Use(
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		middleware.IdentityMiddleware(middleware.HeaderIdentityProvider{}),
		middleware.TenantMiddleware(tenants.NewStore(a.conns.Replica()), middleware.TenantConfig{
			CentralSlug:      cfg.RBAC.CentralTenantSlug,
			DefaultToCentral: cfg.Server.DefaultToCentral,
		}),
	)
	if limiter != nil {
		router.Use(middleware.MutationRateLimit(limiter))
	}
	manager.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(router, "tenantguard"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := observability.NewHealthChecker(version).
		Require("database", observability.DatabaseCheck(a.conns.Primary())).
		Optional("replicas", a.conns.HealthCheck).
		Require("central_tenant", func(ctx context.Context) error {
			_, err := manager.Engine().CentralTenantID(ctx)
			return err
		})
	if redisClient != nil {
		checker.Optional("redis", observability.RedisCheck(redisClient))
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthRouter,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(a.log, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return otelProviders.Shutdown(ctx, a.log)
	})
	return shutdown.Run(ctx)
}
