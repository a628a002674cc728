// Package observability installs the process-wide slog handler.
//
// Formats "text" and "json" log to stderr. Format "otlp" bridges slog into
// the OpenTelemetry log pipeline: records are exported over OTLP/HTTP when
// an OTEL_EXPORTER_OTLP_* endpoint is configured in the environment, and to
// stdout otherwise, filtered to the configured minimum level.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/mjansen/ledgerlink"

// Instrument sets the default slog handler for the process.
func Instrument(level slog.Level, format string) error {
	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	case "otlp":
		return instrumentOTLP(level)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
}

func instrumentOTLP(level slog.Level) error {
	exporter, err := newExporter(context.Background())
	if err != nil {
		return fmt.Errorf("creating log exporter: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severityFor(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	slog.SetDefault(otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(provider)))
	return nil
}

// newExporter selects OTLP/HTTP when an endpoint is configured, stdout
// otherwise, so "otlp" format still works in development.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") != "" {
		return otlploghttp.New(ctx)
	}
	return stdoutlog.New()
}

func severityFor(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
