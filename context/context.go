package context

import (
	gocontext "context"
	"time"

	commons "github.com/flanksource/commons/context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type Context struct {
	commons.Context
}

func New(opts ...commons.ContextOptions) Context {
	return NewContext(gocontext.Background(), opts...)
}

func NewContext(baseCtx gocontext.Context, opts ...commons.ContextOptions) Context {
	return Context{
		Context: commons.NewContext(
			baseCtx,
			opts...,
		),
	}
}

func (k Context) WithTimeout(timeout time.Duration) (Context, gocontext.CancelFunc) {
	ctx, cancelFunc := k.Context.WithTimeout(timeout)
	return Context{
		Context: ctx,
	}, cancelFunc
}

// WithName scopes the logger and the errors built by Oops to name.
func (k Context) WithName(name string) Context {
	ctx := k.WithValue("name", name)
	ctx.Logger = k.Logger.Named(name)
	return ctx
}

func (k Context) Name() string {
	name, _ := k.Value("name").(string)
	return name
}

// Oops starts an error builder carrying the context name and the current
// trace and span ids.
func (k Context) Oops(tags ...string) oops.OopsErrorBuilder {
	b := oops.Tags(tags...)
	if name := k.Name(); name != "" {
		b = b.In(name)
	}
	if sc := k.GetSpan().SpanContext(); sc.IsValid() {
		b = b.Trace(sc.TraceID().String()).Span(sc.SpanID().String())
	}
	return b
}

func (k Context) WithValue(key, val any) Context {
	return Context{
		Context: k.Context.WithValue(key, val),
	}
}

// WithActor records the acting user on the span and logger. Workflow
// operations still take the actor as an explicit parameter.
func (k Context) WithActor(actor uuid.UUID) Context {
	k.GetSpan().SetAttributes(attribute.String("actor-id", actor.String()))
	return k.WithValue("actor", actor)
}

func (k Context) WithDB(db *gorm.DB, pool *pgxpool.Pool) Context {
	return k.WithValue("db", db).WithValue("pgxpool", pool)
}

// WithClock overrides the source of Now(), used to make overdue checks
// and timestamps deterministic.
func (k Context) WithClock(clock func() time.Time) Context {
	return k.WithValue("clock", clock)
}

// Now returns the current time in UTC from the injected clock, if any.
func (k Context) Now() time.Time {
	if clock, ok := k.Value("clock").(func() time.Time); ok && clock != nil {
		return clock().UTC()
	}
	return time.Now().UTC()
}

// Today returns the start of the current day in UTC.
func (k Context) Today() time.Time {
	return k.Now().Truncate(24 * time.Hour)
}

func (k Context) DB() *gorm.DB {
	val := k.Value("db")
	if val == nil {
		return nil
	}

	v, ok := val.(*gorm.DB)
	if !ok || v == nil {
		return nil
	}
	return v.WithContext(k)
}

func (k Context) Pool() *pgxpool.Pool {
	val := k.Value("pgxpool")
	if val == nil {
		return nil
	}
	v, ok := val.(*pgxpool.Pool)
	if !ok {
		return nil
	}
	return v
}

func (k Context) StartSpan(name string) (Context, trace.Span) {
	ctx, span := k.Context.StartSpan(name)
	return Context{
		Context: ctx,
	}, span
}

// Transaction runs fn inside a database transaction. The context passed to fn
// is bound to the transaction; nested calls use savepoints.
func (k Context) Transaction(fn func(ctx Context, span trace.Span) error) error {
	ctx, span := k.StartSpan("Transaction")
	defer span.End()

	return ctx.DB().Transaction(func(tx *gorm.DB) error {
		return fn(ctx.WithValue("db", tx), span)
	})
}

// Wrap returns a context derived from ctx that keeps the database, clock and tracer.
func (k Context) Wrap(ctx gocontext.Context) Context {
	wrapped := NewContext(ctx, commons.WithTracer(k.GetTracer())).
		WithDB(k.rawDB(), k.Pool())

	if clock, ok := k.Value("clock").(func() time.Time); ok {
		wrapped = wrapped.WithClock(clock)
	}
	return wrapped
}

func (k Context) rawDB() *gorm.DB {
	v, _ := k.Value("db").(*gorm.DB)
	return v
}
