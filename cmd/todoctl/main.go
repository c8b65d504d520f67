// Package main is the entry point for the todoctl CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"todoctl/internal/backend/todoapi"
	"todoctl/internal/claims"
	"todoctl/internal/cli"
	"todoctl/internal/commands"
	"todoctl/internal/config"
	"todoctl/internal/credstore"
	"todoctl/internal/observability"
	"todoctl/internal/service"
	"todoctl/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newService)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// newService wires the credential store, session manager and API client.
func newService(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	tr := todoapi.NewTransport(todoapi.Options{
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
		Metrics:    metrics,
		Breaker: todoapi.BreakerSettings{
			Enabled:      cfg.Breaker.Enabled,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			Timeout:      cfg.Breaker.Timeout,
		},
	})
	auth := todoapi.NewAuthClient(tr)

	opts := []session.Option{
		session.WithRenewalWindow(cfg.RenewalWindow),
		session.WithLogger(logger),
		session.WithMetrics(metrics),
	}
	if cfg.AlwaysRefresh {
		opts = append(opts, session.WithAlwaysRefresh())
	}
	mgr := session.NewManager(store, claims.NewJWTDecoder(), auth, opts...)
	if err := mgr.Init(ctx); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	logger.Debug("session restored",
		zap.String("store", cfg.Store),
		zap.Stringer("state", mgr.State()),
	)
	return todoapi.New(tr, auth, mgr), nil
}

func newStore(cfg *config.Config) (credstore.Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		return credstore.NewFileStore(cfg.TokenPath()), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return credstore.NewRedisStore(client, cfg.Redis.Prefix), nil
	case config.StoreMemory:
		return credstore.NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("invalid store: %s", cfg.Store)
	}
}
