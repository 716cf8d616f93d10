// Package observability wires OpenTelemetry tracing and metrics for the
// router: one span and a set of RED instruments per decision, decision
// counters by outcome, and ledger spend gauges.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

const scope = "hybridrouter"

// Config selects the collector and sampling.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC host:port
	SampleRate     float64
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig exports to a local collector over TLS and samples everything.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "hybridrouter",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
		Enabled:        true,
	}
}

// instruments are nil on a disabled provider.
type instruments struct {
	requests  metric.Int64Counter
	failures  metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	decisions metric.Int64Counter
}

// Provider owns the SDK providers and the router's instruments. Every
// method tolerates a disabled provider.
type Provider struct {
	cfg    Config
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	inst   instruments
	logger *slog.Logger
}

// New builds a provider. With Enabled false nothing is exported and no
// global state is touched.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{cfg: *cfg, logger: slog.Default().With("component", "observability")}
	if !cfg.Enabled {
		p.logger.DebugContext(ctx, "telemetry export off")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	if p.tp, err = newTracerProvider(ctx, p.cfg, res); err != nil {
		return nil, err
	}
	if p.mp, err = newMeterProvider(ctx, p.cfg, res); err != nil {
		_ = p.tp.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	p.tracer = p.tp.Tracer(scope, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = p.mp.Meter(scope, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if p.inst, err = newInstruments(p.meter); err != nil {
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry exporting",
		"endpoint", cfg.OTLPEndpoint,
		"environment", cfg.Environment,
		"sample_rate", cfg.SampleRate,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}
	every := cfg.MetricInterval
	if every <= 0 {
		every = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(every))),
	), nil
}

func newInstruments(m metric.Meter) (instruments, error) {
	var (
		in   instruments
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	in.requests, err = m.Int64Counter("router.requests.total",
		metric.WithDescription("Decide calls"), metric.WithUnit("{request}"))
	collect(err)
	in.failures, err = m.Int64Counter("router.errors.total",
		metric.WithDescription("Decide calls that were rejected or failed"), metric.WithUnit("{error}"))
	collect(err)
	in.latency, err = m.Float64Histogram("router.request.duration",
		metric.WithDescription("Decide latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1))
	collect(err)
	in.inFlight, err = m.Int64UpDownCounter("router.operations.active",
		metric.WithDescription("Decide calls in progress"), metric.WithUnit("{operation}"))
	collect(err)
	in.decisions, err = m.Int64Counter("router.decisions.total",
		metric.WithDescription("Decisions by route, outcome and rejection kind"), metric.WithUnit("{decision}"))
	collect(err)

	return in, errors.Join(errs...)
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer falls back to the global tracer when export is off.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer != nil {
		return p.tracer
	}
	return otel.Tracer(scope)
}

// Meter falls back to the global meter when export is off.
func (p *Provider) Meter() metric.Meter {
	if p.meter != nil {
		return p.meter
	}
	return otel.Meter(scope)
}

// TrackOperation opens a span and the RED bookkeeping for one operation.
// The returned func must be called exactly once with the outcome.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	began := time.Now()
	set := metric.WithAttributes(attrs...)

	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if p.inst.requests != nil {
		p.inst.requests.Add(ctx, 1, set)
		p.inst.inFlight.Add(ctx, 1, set)
	}

	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
		}
		if p.inst.requests == nil {
			return
		}
		p.inst.inFlight.Add(ctx, -1, set)
		p.inst.latency.Record(ctx, time.Since(began).Seconds(), set)
		if err != nil {
			p.inst.failures.Add(ctx, 1, metric.WithAttributes(append(attrs[:len(attrs):len(attrs)], errorType(err))...))
		}
	}
}

func errorType(err error) attribute.KeyValue {
	if k := contracts.KindOf(err); k != contracts.KindNone {
		return attribute.String("error.type", string(k))
	}
	return attribute.String("error.type", fmt.Sprintf("%T", err))
}

// RecordDecision counts one routing decision.
func (p *Provider) RecordDecision(ctx context.Context, route string, allowed bool, kind contracts.RejectionKind, throttled bool) {
	if p.inst.decisions != nil {
		p.inst.decisions.Add(ctx, 1, metric.WithAttributes(DecisionAttributes(route, allowed, kind, throttled)...))
	}
}

// SpendFunc reports ledger totals in cents for the spend gauge.
type SpendFunc func() (direct, integration, combined int64, shutdown bool)

// RegisterSpendGauge exports ledger totals as observable gauges. It does
// nothing when export is off.
func (p *Provider) RegisterSpendGauge(spend SpendFunc) error {
	if p.meter == nil {
		return nil
	}
	spent, err := p.meter.Int64ObservableGauge("router.ledger.spend",
		metric.WithDescription("Ledger spend by route"), metric.WithUnit("{cent}"))
	if err != nil {
		return err
	}
	latched, err := p.meter.Int64ObservableGauge("router.ledger.shutdown_active",
		metric.WithDescription("1 while the emergency shutdown latch is set"))
	if err != nil {
		return err
	}
	_, err = p.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		direct, integration, combined, shutdown := spend()
		o.ObserveInt64(spent, direct, metric.WithAttributes(AttrRoute.String(string(contracts.RouteDirect))))
		o.ObserveInt64(spent, integration, metric.WithAttributes(AttrRoute.String(string(contracts.RouteIntegration))))
		o.ObserveInt64(spent, combined, metric.WithAttributes(AttrRoute.String("combined")))
		if shutdown {
			o.ObserveInt64(latched, 1)
		} else {
			o.ObserveInt64(latched, 0)
		}
		return nil
	}, spent, latched)
	return err
}
