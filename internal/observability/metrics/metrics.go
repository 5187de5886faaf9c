package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	turns          metric.Int64Counter
	creditsDebited metric.Int64Counter
	creditsGranted metric.Int64Counter
	paymentEvents  metric.Int64Counter
	completionTime metric.Float64Histogram
	rateLimited    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creavisionbot"
	}
	meter := provider.Meter(name)

	turns, err := meter.Int64Counter("creavision_turns_total")
	if err != nil {
		return nil, err
	}
	creditsDebited, err := meter.Int64Counter("creavision_credits_debited_total")
	if err != nil {
		return nil, err
	}
	creditsGranted, err := meter.Int64Counter("creavision_credits_granted_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("creavision_payment_events_total")
	if err != nil {
		return nil, err
	}
	completionTime, err := meter.Float64Histogram("creavision_completion_duration_seconds")
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter("creavision_rate_limited_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		turns:          turns,
		creditsDebited: creditsDebited,
		creditsGranted: creditsGranted,
		paymentEvents:  paymentEvents,
		completionTime: completionTime,
		rateLimited:    rateLimited,
	}, nil
}

// RecordTurn counts a metered turn by outcome (ok, insufficient_credits, completion_failed, persistence_failed).
func (m *Metrics) RecordTurn(ctx context.Context, persona, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("persona", strings.TrimSpace(persona)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.turns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditsDebited adds debited credits.
func (m *Metrics) RecordCreditsDebited(ctx context.Context, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsDebited.Add(ctx, amount)
}

// RecordCreditsGranted adds credits granted by source (purchase, adjustment).
func (m *Metrics) RecordCreditsGranted(ctx context.Context, sourceType string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.creditsGranted.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveCompletion records upstream completion latency.
func (m *Metrics) ObserveCompletion(ctx context.Context, provider string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.completionTime.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimited counts rejected requests per route.
func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("route", strings.TrimSpace(route)))
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"persona":     {},
	"outcome":     {},
	"route":       {},
	"method":      {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"source_type": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
