package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"manhwa-recommender/internal/common/logger"
)

// Observability owns the otel meter provider. Instruments are exported
// through the default Prometheus registry next to the promauto metrics.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter

	generated otelmetric.Int64Counter
	duration  otelmetric.Float64Histogram
	cacheHits otelmetric.Int64Counter
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter, otel metrics disabled", map[string]interface{}{
			"error": err,
		})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	generated, _ := meter.Int64Counter(
		"recommendations.generated",
		otelmetric.WithDescription("Recommendation sets generated"),
	)
	duration, _ := meter.Float64Histogram(
		"recommendations.duration",
		otelmetric.WithDescription("Recommendation generation duration"),
		otelmetric.WithUnit("ms"),
	)
	cacheHits, _ := meter.Int64Counter(
		"recommendations.cache_hits",
		otelmetric.WithDescription("Recommendation responses served from cache"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		generated:     generated,
		duration:      duration,
		cacheHits:     cacheHits,
	}
}

func (o *Observability) RecordGenerated(ctx context.Context, tier string, elapsed time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("tier", tier))
	if o.generated != nil {
		o.generated.Add(ctx, 1, attrs)
	}
	if o.duration != nil {
		o.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordCacheHit(ctx context.Context, kind string) {
	if o == nil || o.cacheHits == nil {
		return
	}
	o.cacheHits.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
