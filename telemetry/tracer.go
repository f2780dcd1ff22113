// Package telemetry exports the spans started around transactions, jobs and
// queue consumers to an OpenTelemetry collector.
package telemetry

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/flanksource/commons/collections"
	"github.com/flanksource/commons/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	// CollectorURL is host:port for gRPC or an http(s):// URL, tracing is off when empty.
	CollectorURL string
	ServiceName  string
	Insecure     bool

	// TransactionSample is the percentage of database transaction spans kept.
	TransactionSample float64
}

func (c Config) client() otlptrace.Client {
	if strings.HasPrefix(c.CollectorURL, "http") {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(strings.TrimPrefix(strings.TrimPrefix(c.CollectorURL, "https://"), "http://")),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if c.Insecure || strings.HasPrefix(c.CollectorURL, "http://") {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
		}
		return otlptracehttp.NewClient(opts...)
	}

	secure := otlptracegrpc.WithInsecure()
	if !c.Insecure {
		secure = otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	}
	return otlptracegrpc.NewClient(secure, otlptracegrpc.WithEndpoint(c.CollectorURL))
}

func (c Config) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{attribute.String("service.name", c.ServiceName)}
	if val, ok := os.LookupEnv("OTEL_LABELS"); ok {
		for k, v := range collections.KeyValueSliceToMap(strings.Split(val, ",")) {
			attrs = append(attrs, attribute.String(k, v))
		}
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

// Init installs the global tracer provider and returns its shutdown func.
func (c Config) Init() func() {
	noop := func() {}
	if c.CollectorURL == "" {
		return noop
	}

	exporter, err := otlptrace.New(context.Background(), c.client())
	if err != nil {
		logger.Errorf("failed to create opentelemetry exporter: %v", err)
		return noop
	}

	res, err := c.resource()
	if err != nil {
		logger.Errorf("could not set opentelemetry resources: %v", err)
		return noop
	}

	samplers := map[string]sdktrace.Sampler{}
	if c.TransactionSample > 0 && c.TransactionSample < 100 {
		samplers["Transaction"] = NewCounterSampler(c.TransactionSample)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(NewSpanSampler(sdktrace.AlwaysSample(), samplers)),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	logger.Infof("Sending traces to %s", c.CollectorURL)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Errorf("failed to flush traces: %v", err)
		}
	}
}
