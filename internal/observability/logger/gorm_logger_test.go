package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from accounts"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (SELECT 1) UPDATE accounts SET credits = 1"))
	assert.Equal(t, "DELETE", operationFromSQL("  (DELETE FROM conversations)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())
	ctx := WithRequestID(context.Background(), "req-1")

	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), func() (string, int64) { return "UPDATE accounts", 0 }, errors.New("boom"))
	if assert.Equal(t, 1, logs.Len()) {
		entry := logs.All()[0]
		assert.Equal(t, "gorm.query", entry.Message)
		assert.Equal(t, "UPDATE", entry.ContextMap()["operation"])
		assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
	}

	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) { return "DELETE FROM x", 2 }, nil)
	assert.Equal(t, 2, logs.Len())
}
