// Package logging wires slog.Default into the OpenTelemetry log pipeline.
// Records go to stdout by default and to an OTLP collector when
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Setup initializes OpenTelemetry with slog logging and returns a shutdown
// function.
func Setup(service *resource.Resource) func(context.Context) error {
	// Retrieve log level from the environment, default to info
	var verbose slog.LevelVar
	verbose.Set(slog.LevelInfo)
	if input := os.Getenv("OTEL_LOG_LEVEL"); input != "" {
		_ = verbose.UnmarshalText([]byte(input))
	}

	ctx := context.Background()
	exporter, err := newLogExporter(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "OpenTelemetry setup failed", "error", err)
		os.Exit(1)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(service),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	// Redirect slog.Default() to OpenTelemetry
	stdlog := slog.New(withLevel(
		&verbose,
		otelslog.NewHandler("slog", otelslog.WithLoggerProvider(provider)),
	))
	slog.SetDefault(stdlog)

	slog.InfoContext(ctx, "OpenTelemetry setup successful")
	return provider.Shutdown
}

func newLogExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		return otlploghttp.New(ctx)
	}
	return stdoutlog.New()
}

// levelHandler gates an slog.Handler behind a dynamic level.
type levelHandler struct {
	level slog.Leveler
	next  slog.Handler
}

func withLevel(level slog.Leveler, next slog.Handler) slog.Handler {
	return &levelHandler{level: level, next: next}
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.next.Handle(ctx, record)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithGroup(name)}
}
