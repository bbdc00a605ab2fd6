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
	sequenceGenerated metric.Int64Counter
	sequenceResets    metric.Int64Counter
	bomExplosions     metric.Int64Counter
	bomActivations    metric.Int64Counter
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
		name = "erpcore"
	}
	meter := provider.Meter(name)

	sequenceGenerated, err := meter.Int64Counter("erpcore_sequence_generated_total")
	if err != nil {
		return nil, err
	}
	sequenceResets, err := meter.Int64Counter("erpcore_sequence_resets_total")
	if err != nil {
		return nil, err
	}
	bomExplosions, err := meter.Int64Counter("erpcore_bom_explosions_total")
	if err != nil {
		return nil, err
	}
	bomActivations, err := meter.Int64Counter("erpcore_bom_activations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sequenceGenerated: sequenceGenerated,
		sequenceResets:    sequenceResets,
		bomExplosions:     bomExplosions,
		bomActivations:    bomActivations,
	}, nil
}

// RecordSequenceGenerated increments issued number counts.
func (m *Metrics) RecordSequenceGenerated(ctx context.Context, tenantID, sequenceName string, override bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("sequence_name", strings.TrimSpace(sequenceName)),
		attribute.Bool("override", override),
	)
	m.sequenceGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSequenceReset increments counter reset counts.
func (m *Metrics) RecordSequenceReset(ctx context.Context, tenantID, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("trigger", strings.TrimSpace(trigger)),
	)
	m.sequenceResets.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBOMExplosion increments explosion counts by outcome.
func (m *Metrics) RecordBOMExplosion(ctx context.Context, tenantID, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tenant_id", strings.TrimSpace(tenantID)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.bomExplosions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBOMActivation increments activation counts.
func (m *Metrics) RecordBOMActivation(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tenant_id", strings.TrimSpace(tenantID)))
	m.bomActivations.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"tenant_id":     {},
	"sequence_name": {},
	"override":      {},
	"trigger":       {},
	"outcome":       {},
	"reason":        {},
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
