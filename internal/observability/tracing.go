package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer emits OpenTelemetry spans for the gateway's request paths: the HTTP
// surface, ingest pipeline stages, embedding provider calls, and the three
// backing stores. Spans export over OTLP gRPC when an endpoint is configured;
// without one the tracer is inert and cheap to call.
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "cortexdb",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(context.Background())
type Tracer struct {
	tracer trace.Tracer
}

// TraceConfig configures span export.
type TraceConfig struct {
	// ServiceName labels spans in the backend; defaults to "cortexdb".
	ServiceName string

	// ServiceVersion is attached as a resource attribute.
	ServiceVersion string

	// Environment (production, staging, dev) is attached when non-empty.
	Environment string

	// Endpoint is the OTLP gRPC collector address. Empty disables export:
	// spans are still created but never leave the process.
	Endpoint string

	// SamplingRate is the fraction of traces recorded, 0.0 through 1.0.
	// Zero means unset and samples everything.
	SamplingRate float64

	// Attributes are extra resource attributes stamped on every span.
	Attributes map[string]string

	// EnableInsecure skips TLS on the collector connection.
	EnableInsecure bool
}

// SpanOptions carries per-span kind and attributes for Start.
type SpanOptions struct {
	Kind       trace.SpanKind
	Attributes []attribute.KeyValue
}

// NewTracer builds a Tracer and returns it with a shutdown func that flushes
// pending spans. With no Endpoint the tracer records nothing and shutdown
// always returns nil. Exporter construction failures degrade to the same
// inert tracer rather than failing startup.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "cortexdb"
	}
	if config.Endpoint == "" {
		return noopTracer(config)
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}
	if config.EnableInsecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return noopTracer(config)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(buildResource(config)),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{tracer: provider.Tracer(config.ServiceName)}
	return t, provider.Shutdown
}

// noopTracer hands back a tracer bound to the global provider, which records
// nothing unless something else installed a real one.
func noopTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	t := &Tracer{tracer: otel.Tracer(config.ServiceName)}
	return t, func(context.Context) error { return nil }
}

func buildResource(config TraceConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Start opens a span and returns the context carrying it. The caller ends
// the span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	var startOpts []trace.SpanStartOption
	for _, opt := range opts {
		if opt.Kind != trace.SpanKindUnspecified {
			startOpts = append(startOpts, trace.WithSpanKind(opt.Kind))
		}
		if len(opt.Attributes) > 0 {
			startOpts = append(startOpts, trace.WithAttributes(opt.Attributes...))
		}
	}
	return t.tracer.Start(ctx, name, startOpts...)
}

// StartSpan is Start for callers that don't need the derived context.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOptions) trace.Span {
	_, span := t.Start(ctx, name, opts...)
	return span
}

// RecordError marks the span failed and records err on it. Nil is ignored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes attaches alternating key-value pairs to the span. Keys must
// be strings; malformed pairs are dropped.
//
//	tracer.SetAttributes(span, "collection", "docs", "vectors", 12)
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	span.SetAttributes(attributesFromKeyvals(keyvals)...)
}

// AddEvent records a point-in-time event on the span, with the same
// key-value convention as SetAttributes.
//
//	tracer.AddEvent(span, "blobs_compensated", "collection", "docs", "count", 2)
func (t *Tracer) AddEvent(span trace.Span, name string, keyvals ...any) {
	span.AddEvent(name, trace.WithAttributes(attributesFromKeyvals(keyvals)...))
}

// attributesFromKeyvals converts alternating key-value arguments into span
// attributes. Non-string keys and a trailing dangling key are dropped.
func attributesFromKeyvals(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attributeFromValue(key, keyvals[i+1]))
	}
	return attrs
}

// attributeFromValue picks the typed attribute constructor for val, falling
// back to its fmt representation.
func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []int:
		return attribute.IntSlice(key, v)
	case []int64:
		return attribute.Int64Slice(key, v)
	case []float64:
		return attribute.Float64Slice(key, v)
	case []bool:
		return attribute.BoolSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// TraceIngest opens a server span for one write pipeline run
// ("ingest.create", "ingest.update", "ingest.delete").
func (t *Tracer) TraceIngest(ctx context.Context, collection, operation string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("ingest.%s", operation), SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("collection", collection),
			attribute.String("operation", operation),
		},
	})
}

// TraceEmbeddingRequest opens a client span for one provider embedding call.
func (t *Tracer) TraceEmbeddingRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("embed.%s", provider), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("embed.provider", provider),
			attribute.String("embed.model", model),
		},
	})
}

// TraceSearch opens a server span for a hybrid search against a collection.
func (t *Tracer) TraceSearch(ctx context.Context, collection string) (context.Context, trace.Span) {
	return t.Start(ctx, "search", SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("collection", collection),
		},
	})
}

// TraceDatabaseQuery opens a client span for a SQL statement against the
// metadata store.
func (t *Tracer) TraceDatabaseQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("db.%s", operation), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		},
	})
}

// TraceHTTPRequest opens a server span named after the method and route
// pattern, e.g. "http.POST /collections/{collection}/search".
func (t *Tracer) TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("http.%s %s", method, path), SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		},
	})
}

// InjectContext writes the active trace context into carrier, typically
// outgoing HTTP headers.
func (t *Tracer) InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext reads trace context out of carrier into a derived context.
func (t *Tracer) ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// WithSpan runs fn inside a span, recording any returned error before
// passing it through.
func WithSpan(ctx context.Context, tracer *Tracer, name string, fn func(context.Context, trace.Span) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx, span)
	if err != nil {
		tracer.RecordError(span, err)
	}
	return err
}

// SpanFromContext returns the context's span, or a non-recording span when
// none is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan returns ctx carrying span.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}

// GetTraceID returns the active trace id, or "" when no sampled trace is in
// the context.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the active span id, or "" when no span is in the context.
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// MapCarrier is a map-backed propagation.TextMapCarrier for transports that
// are not http.Header shaped.
type MapCarrier map[string]string

// Get returns the value for key, or "".
func (m MapCarrier) Get(key string) string {
	return m[key]
}

// Set stores key=value.
func (m MapCarrier) Set(key, value string) {
	m[key] = value
}

// Keys lists the stored keys.
func (m MapCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
