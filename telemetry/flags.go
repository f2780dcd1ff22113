package telemetry

import (
	"os"

	"github.com/spf13/pflag"
)

var DefaultConfig = Config{TransactionSample: 100}

func BindFlags(flags *pflag.FlagSet, serviceName string) {
	flags.StringVar(&DefaultConfig.CollectorURL, "otel-collector-url", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "OpenTelemetry collector, host:port for gRPC or an http(s):// URL")
	flags.StringVar(&DefaultConfig.ServiceName, "otel-service-name", serviceName, "OpenTelemetry service name for the resource")
	flags.BoolVar(&DefaultConfig.Insecure, "otel-insecure", true, "Disable TLS to the collector")
	flags.Float64Var(&DefaultConfig.TransactionSample, "otel-transaction-sample", DefaultConfig.TransactionSample, "Percentage of database transaction spans to keep")
}
