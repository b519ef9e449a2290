package obs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryKey struct{}

type queryState struct {
	span  trace.Span
	sql   string
	start time.Time
}

// QueryTracer is a pgx.QueryTracer that opens a client span per statement and logs statements
// slower than SlowThreshold. A zero threshold disables the slow log.
type QueryTracer struct {
	Logger        zerolog.Logger
	SlowThreshold time.Duration
}

func (t QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := statement(data.SQL)
	ctx, span := otel.Tracer("storefront/catalog").Start(ctx, "catalog.query", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	)
	if fields := strings.Fields(sql); len(fields) > 0 {
		span.SetAttributes(attribute.String("db.operation", strings.ToUpper(fields[0])))
	}
	return context.WithValue(ctx, queryKey{}, queryState{span: span, sql: sql, start: time.Now()})
}

func (t QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(queryKey{}).(queryState)
	if !ok {
		return
	}
	defer q.span.End()

	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		q.span.RecordError(data.Err)
		q.span.SetStatus(codes.Error, "query failed")
	}
	q.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))

	elapsed := time.Since(q.start)
	if t.SlowThreshold > 0 && elapsed >= t.SlowThreshold {
		t.Logger.Warn().
			Str("statement", q.sql).
			Dur("elapsed", elapsed).
			Msg("slow_query")
	}
}

func statement(sql string) string {
	sql = strings.TrimSpace(sql)
	if len(sql) > maxStatementLen {
		return sql[:maxStatementLen] + "..."
	}
	return sql
}
