package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/database"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// app bundles what every command needs: configuration, a logger and the
// database connections.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	conns  *database.ConnectionManager
	opts   []rbac.Option
	closer []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		return nil, err
	}

	conns, err := database.NewConnectionManager(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &app{
		cfg:    cfg,
		log:    logger,
		conns:  conns,
		opts:   []rbac.Option{rbac.WithLogger(logger)},
		closer: []func() error{conns.Close},
	}, nil
}

func (a *app) dialect() rbac.Dialect {
	return rbac.Dialect(a.conns.Driver())
}

// manager builds the RBAC manager from the options gathered so far
func (a *app) manager(extra ...rbac.Option) (*rbac.Manager, error) {
	opts := append(append([]rbac.Option{}, a.opts...), extra...)
	return rbac.NewManager(a.conns.Primary(), a.dialect(), a.cfg.RBAC, opts...)
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			a.log.WithError(err).Warn("failed to close resource")
		}
	}
}
