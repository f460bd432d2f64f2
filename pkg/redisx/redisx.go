package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"gitlab.com/ucmsv2/idbroker/pkg/env"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to the server with tracing and metrics attached and pings it once.
func NewClient(ctx context.Context, cfg Config, mode env.Mode) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var tracingOpts []redisotel.TracingOption
	if mode == env.Prod {
		tracingOpts = append(tracingOpts, redisotel.WithDBStatement(false))
	}
	if err := redisotel.InstrumentTracing(client, tracingOpts...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to instrument redis metrics: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
