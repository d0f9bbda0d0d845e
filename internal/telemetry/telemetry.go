// Package telemetry wires OpenTelemetry tracing and metrics for extraction runs.
//
// Exporters write pretty-printed JSON to rotated files. When no metrics file is
// configured the global no-op providers stay in place and recording is free.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/hpungsan/transferbot/internal/transfer"
	"github.com/hpungsan/transferbot/pkg/logger"
)

const instrumentationName = "github.com/hpungsan/transferbot"

// Config selects where telemetry is written.
type Config struct {
	ServiceVersion string
	MetricsFile    string
	Interval       time.Duration // metric export interval, default 10s
}

// TracesFile returns the trace log path paired with a metrics file:
// metrics.log -> metrics.traces.log.
func TracesFile(metricsFile string) string {
	ext := filepath.Ext(metricsFile)
	return strings.TrimSuffix(metricsFile, ext) + ".traces" + ext
}

func rotated(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// Init installs global tracer and meter providers exporting to cfg.MetricsFile
// and its paired traces file. The returned cleanup flushes and closes both.
func Init(ctx context.Context, cfg Config, log *logger.Logger) (func(), error) {
	if cfg.MetricsFile == "" {
		return func() {}, nil
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("transferbot"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.MetricsFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	traceFile := rotated(TracesFile(cfg.MetricsFile))
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile := rotated(cfg.MetricsFile)
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.Interval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer provider", logger.Error(err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown meter provider", logger.Error(err))
		}
		if err := traceFile.Close(); err != nil {
			log.Error("failed to close trace file", logger.Error(err))
		}
		if err := metricsFile.Close(); err != nil {
			log.Error("failed to close metrics file", logger.Error(err))
		}
	}
	return cleanup, nil
}

// Recorder holds the extraction instruments.
type Recorder struct {
	tracer     trace.Tracer
	runs       metric.Int64Counter
	records    metric.Int64Counter
	incomplete metric.Int64Counter
	malformed  metric.Int64Counter
	dropped    metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewRecorder creates instruments on the given providers.
func NewRecorder(mp metric.MeterProvider, tp trace.TracerProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &Recorder{tracer: tp.Tracer(instrumentationName)}

	var err error
	if r.runs, err = meter.Int64Counter("transfer.runs",
		metric.WithDescription("Extraction runs")); err != nil {
		return nil, err
	}
	if r.records, err = meter.Int64Counter("transfer.records",
		metric.WithDescription("Records emitted")); err != nil {
		return nil, err
	}
	if r.incomplete, err = meter.Int64Counter("transfer.incomplete",
		metric.WithDescription("Records that never completed")); err != nil {
		return nil, err
	}
	if r.malformed, err = meter.Int64Counter("transfer.malformed_tokens",
		metric.WithDescription("Time-shaped tokens outside the valid range")); err != nil {
		return nil, err
	}
	if r.dropped, err = meter.Int64Counter("transfer.dropped_lines",
		metric.WithDescription("Lines removed by the noise classifier")); err != nil {
		return nil, err
	}
	if r.duration, err = meter.Float64Histogram("transfer.duration",
		metric.WithDescription("Extraction duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return r, nil
}

var defaultRecorder = sync.OnceValue(func() *Recorder {
	r, err := NewRecorder(otel.GetMeterProvider(), otel.GetTracerProvider())
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return r
})

// Default returns a recorder bound to the global providers. Instruments created
// before Init delegate to the providers Init installs.
func Default() *Recorder {
	return defaultRecorder()
}

// Start opens a span. A nil recorder returns ctx unchanged with a no-op span.
func (r *Recorder) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

type sourceKey struct{}

// WithSource tags ctx with the shell that triggered the work (web, cli, mcp,
// watcher). Record reads it back as the "source" attribute.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or "unknown".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Record adds one extraction result to the counters. op names the operation
// (extract, finish, convert_file); the caller comes from ctx.
func (r *Recorder) Record(ctx context.Context, op string, policy transfer.Policy, res transfer.Result, elapsed time.Duration) {
	if r == nil {
		return
	}
	source := SourceFrom(ctx)
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("source", source),
		attribute.String("policy", string(policy)),
	)
	r.runs.Add(ctx, 1, attrs)
	r.records.Add(ctx, int64(len(res.Records)), attrs)
	r.incomplete.Add(ctx, int64(len(res.Incomplete)), attrs)
	r.malformed.Add(ctx, int64(res.Stats.MalformedTokens), attrs)
	for class, n := range res.Stats.Dropped {
		r.dropped.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("source", source),
			attribute.String("class", class),
		))
	}
	r.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
