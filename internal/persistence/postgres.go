package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/config"
)

const applicationName = "itsm-portal"

// Postgres wraps the pgx pool shared by the repositories.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects and pings. Tickets, users and history all live in
// postgres, so an empty DSN is an error.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger(logger.Named("pgx")),
		LogLevel: queryLogLevel(cfg.QueryLogLevel),
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to postgres",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.String("query_log_level", queryLogLevel(cfg.QueryLogLevel).String()),
	)
	return &Postgres{Pool: pool}, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Ping verifies the pool is usable. It backs the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.Pool.Ping(ctx)
}

// queryLogger forwards pgx trace output to zap. Query arguments are dropped:
// they carry password hashes and ticket text.
func queryLogger(logger *zap.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			if k == "args" {
				continue
			}
			fields = append(fields, zap.Any(k, v))
		}
		switch level {
		case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
			logger.Debug(msg, fields...)
		case tracelog.LogLevelInfo:
			logger.Info(msg, fields...)
		case tracelog.LogLevelWarn:
			logger.Warn(msg, fields...)
		default:
			logger.Error(msg, fields...)
		}
	})
}

func queryLogLevel(raw string) tracelog.LogLevel {
	level, err := tracelog.LogLevelFromString(raw)
	if err != nil {
		return tracelog.LogLevelWarn
	}
	return level
}
