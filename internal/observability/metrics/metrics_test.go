package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "t1"),
		attribute.String("generated_number", "INV-0001"),
		attribute.String("sequence_name", "invoice"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "generated_number" {
			t.Fatalf("expected generated_number to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSequenceGenerated(context.Background(), "t1", "invoice", false)
	m.RecordBOMExplosion(context.Background(), "t1", "ok")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordSequenceGenerated(context.Background(), "t1", "invoice", true)
	m.RecordSequenceReset(context.Background(), "t1", "time")
	m.RecordBOMActivation(context.Background(), "t1")
}
