package telemetry

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type skipKey struct{}

// WithoutTracing drops every span started below ctx.
func WithoutTracing(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

// SpanSampler picks a sampler by span name and falls back to a default.
type SpanSampler struct {
	fallback sdktrace.Sampler
	byName   map[string]sdktrace.Sampler
}

func NewSpanSampler(fallback sdktrace.Sampler, byName map[string]sdktrace.Sampler) *SpanSampler {
	return &SpanSampler{fallback: fallback, byName: byName}
}

func (s *SpanSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if params.ParentContext != nil && params.ParentContext.Value(skipKey{}) != nil {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	if sampler, ok := s.byName[params.Name]; ok {
		return sampler.ShouldSample(params)
	}
	return s.fallback.ShouldSample(params)
}

func (s *SpanSampler) Description() string {
	return "SpanSampler"
}

// CounterSampler keeps one span out of every 100/percentage, starting with the first.
type CounterSampler struct {
	counter atomic.Int64
	rate    int64
}

func NewCounterSampler(percentage float64) *CounterSampler {
	rate := int64(1)
	if percentage > 0 && percentage < 100 {
		rate = int64(100.0 / percentage)
	}
	return &CounterSampler{rate: rate}
}

func (cs *CounterSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if (cs.counter.Add(1)-1)%cs.rate == 0 {
		return sdktrace.SamplingResult{Decision: sdktrace.RecordAndSample}
	}
	return sdktrace.SamplingResult{Decision: sdktrace.Drop}
}

func (cs *CounterSampler) Description() string {
	return "CounterSampler"
}
