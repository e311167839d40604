package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

// queryTracer emits a db.query child span per statement. Spans are only
// started when the calling context already carries an active span, so Ping
// and other untracked traffic stay quiet.
type queryTracer struct{}

type querySpanContextKey struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := condenseStatement(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if verb := statementVerb(statement); verb != "" {
		span.SetData("db.operation", verb)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
		span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
	}

	span.Finish()
}

// condenseStatement collapses whitespace and caps the length so multi-line
// queries read as one span description.
func condenseStatement(sql string) string {
	statement := strings.Join(strings.Fields(sql), " ")
	if statement == "" {
		return "sql.query"
	}
	const maxLen = 512
	if len(statement) > maxLen {
		return statement[:maxLen]
	}
	return statement
}

func statementVerb(statement string) string {
	verb, _, _ := strings.Cut(statement, " ")
	return strings.ToUpper(verb)
}
