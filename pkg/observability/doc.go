// Package observability provides logrus logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	observability.FromContext(ctx).Info("role created")
//
// FromContext picks up the request id, actor, tenant and trace ids stored in
// the context by the HTTP middleware.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordMutation("save_role", "success", time.Since(start))
//
// Every recording method is safe on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		Require("database", observability.DatabaseCheck(db)).
//		Optional("redis", observability.RedisCheck(redisClient))
//	observability.RegisterHealthRoutes(router, checker)
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second, apiServer, healthServer)
//	sm.RegisterShutdownFunc(func(ctx context.Context) error { return providers.Shutdown(ctx, logger) })
//	err := sm.Run(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer providers.Shutdown(ctx, logger)
package observability
