package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	spanKey      = "otel:span"
	startTimeKey = "otel:startTime"
	operationKey = "otel:operation"
)

// GORMTracingPlugin returns a GORM plugin that traces database operations
// and records them in the database Prometheus metrics
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{
		tracer: otel.Tracer("gorm"),
	}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name   string
		before func() error
		after  func() error
	}{
		{
			"query",
			func() error {
				return cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT"))
			},
			func() error { return cb.Query().After("gorm:query").Register("telemetry:after_query", p.after) },
		},
		{
			"create",
			func() error {
				return cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT"))
			},
			func() error { return cb.Create().After("gorm:create").Register("telemetry:after_create", p.after) },
		},
		{
			"update",
			func() error {
				return cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE"))
			},
			func() error { return cb.Update().After("gorm:update").Register("telemetry:after_update", p.after) },
		},
		{
			"delete",
			func() error {
				return cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE"))
			},
			func() error { return cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.after) },
		},
	}

	for _, h := range hooks {
		if err := h.before(); err != nil {
			return fmt.Errorf("failed to register before_%s callback: %w", h.name, err)
		}
		if err := h.after(); err != nil {
			return fmt.Errorf("failed to register after_%s callback: %w", h.name, err)
		}
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}

		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, db.Dialector.Name()),
				attribute.String(dbTableKey, tableName(db)),
				attribute.String(dbOperationKey, operation),
			),
		)

		db.InstanceSet(spanKey, span)
		db.InstanceSet(startTimeKey, time.Now())
		db.InstanceSet(operationKey, operation)
	}
}

func (p *tracingPlugin) after(db *gorm.DB) {
	spanRaw, exists := db.InstanceGet(spanKey)
	if !exists {
		return
	}
	span, ok := spanRaw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	var duration time.Duration
	if raw, ok := db.InstanceGet(startTimeKey); ok {
		if start, ok := raw.(time.Time); ok {
			duration = time.Since(start)
			span.SetAttributes(attribute.Int64("db.duration_ms", duration.Milliseconds()))
		}
	}

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > 500 {
			sql = sql[:500] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}

	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}

	// Not-found is a normal outcome for lookups
	err := db.Error
	if err == gorm.ErrRecordNotFound {
		err = nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	operation, _ := db.InstanceGet(operationKey)
	op, _ := operation.(string)
	metrics.RecordDatabaseQuery(strings.ToLower(op), tableName(db), duration, err)
}

func tableName(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}
