package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"proctrack/internal/refnum/metrics"
	"proctrack/internal/refnum/models"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/requestcontext"
)

var tracer = otel.Tracer("proctrack/refnum")

// SequenceStore hands out the next value of a counter. Implementations must
// serialize callers on the same key and never return a value twice.
type SequenceStore interface {
	Next(ctx context.Context, key models.Key) (int64, error)
}

// Generator issues human-readable reference numbers.
type Generator struct {
	store       SequenceStore
	location    *time.Location
	lockTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Generator)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithLocation sets the time zone used to pick the year and month segments.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// WithLockTimeout bounds how long a caller waits for a contended counter.
func WithLockTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.lockTimeout = d
	}
}

func New(store SequenceStore, opts ...Option) (*Generator, error) {
	if store == nil {
		return nil, errors.New("sequence store is required")
	}
	g := &Generator{
		store:       store,
		location:    time.UTC,
		lockTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Generate issues the next reference number for category.
//
// fundType is required for purchase requests and ignored otherwise. When the
// counter cannot be obtained in time nothing is issued and the error carries
// CodeSequenceUnavailable; callers may retry.
func (g *Generator) Generate(ctx context.Context, category id.Category, fundType string, continuation bool) (string, error) {
	req, err := models.Request{Category: category, FundType: fundType, Continuation: continuation}.Normalize()
	if err != nil {
		return "", err
	}
	key := models.KeyFor(req, requestcontext.Now(ctx).In(g.location))

	ctx, span := tracer.Start(ctx, "refnum.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("refnum.key", key.String()))

	if g.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	seq, err := g.store.Next(ctx, key)
	g.metrics.ObserveIssueLatency(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sequence unavailable")
		g.metrics.IncrementFailures(string(category))
		g.logger.ErrorContext(ctx, "reference sequence unavailable",
			"key", key.String(),
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeSequenceUnavailable, "reference number sequence is busy, retry shortly")
	}

	g.metrics.IncrementIssued(string(category))
	return models.Format(key, seq, req.Continuation), nil
}
