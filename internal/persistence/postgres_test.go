package persistence

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/itsm-portal/internal/config"
)

func TestQueryLoggerDropsArguments(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := queryLogger(zap.New(core))

	log.Log(context.Background(), tracelog.LogLevelError, "Query", map[string]any{
		"sql":  "SELECT id FROM users WHERE email = $1",
		"args": []any{"erin@corp.test"},
		"err":  "boom",
	})
	log.Log(context.Background(), tracelog.LogLevelDebug, "Prepare", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Contains(t, fields, "sql")
	assert.NotContains(t, fields, "args")
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestQueryLogLevel(t *testing.T) {
	assert.Equal(t, tracelog.LogLevelInfo, queryLogLevel("info"))
	assert.Equal(t, tracelog.LogLevelNone, queryLogLevel("none"))
	assert.Equal(t, tracelog.LogLevelWarn, queryLogLevel("chatty"))
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "POSTGRES_DSN")

	var pg *Postgres
	assert.Error(t, pg.Ping(context.Background()))
	pg.Close()
}
