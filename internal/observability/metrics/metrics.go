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
	poolsCreated        metric.Int64Counter
	poolsRefreshed      metric.Int64Counter
	reconciliations     metric.Int64Counter
	resolutionFailures  metric.Int64Counter
	entitlementsCreated metric.Int64Counter
	jobRuns             metric.Int64Counter
	jobDuration         metric.Float64Histogram
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
		name = "entitlepool"
	}
	meter := provider.Meter(name)

	poolsCreated, err := meter.Int64Counter("entitlepool_pools_created_total")
	if err != nil {
		return nil, err
	}
	poolsRefreshed, err := meter.Int64Counter("entitlepool_pools_refreshed_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("entitlepool_attribute_reconciliations_total")
	if err != nil {
		return nil, err
	}
	resolutionFailures, err := meter.Int64Counter("entitlepool_resolution_failures_total")
	if err != nil {
		return nil, err
	}
	entitlementsCreated, err := meter.Int64Counter("entitlepool_entitlements_created_total")
	if err != nil {
		return nil, err
	}
	jobRuns, err := meter.Int64Counter("entitlepool_scheduler_job_runs_total")
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("entitlepool_scheduler_job_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		poolsCreated:        poolsCreated,
		poolsRefreshed:      poolsRefreshed,
		reconciliations:     reconciliations,
		resolutionFailures:  resolutionFailures,
		entitlementsCreated: entitlementsCreated,
		jobRuns:             jobRuns,
		jobDuration:         jobDuration,
	}, nil
}

// RecordPoolCreated counts a persisted pool by origin (subscription, user_restricted, direct).
func (m *Metrics) RecordPoolCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.poolsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPoolRefreshed counts a refreshed pool by outcome (regenerated, reconciled, unchanged).
func (m *Metrics) RecordPoolRefreshed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.poolsRefreshed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts attribute reconciliations.
func (m *Metrics) RecordReconciliation(ctx context.Context, changed bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("changed", changed))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordResolutionFailure counts rejected references by failure kind.
func (m *Metrics) RecordResolutionFailure(ctx context.Context, entity, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity", strings.TrimSpace(entity)),
		attribute.String("reason", strings.TrimSpace(kind)),
	)
	m.resolutionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEntitlement counts entitlements granted against pools.
func (m *Metrics) RecordEntitlement(ctx context.Context, userRestricted bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("user_restricted", userRestricted))
	m.entitlementsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobRun counts a scheduler job run by outcome (ok, error, timeout, skipped).
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
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
	"source":          {},
	"job":             {},
	"outcome":         {},
	"changed":         {},
	"entity":          {},
	"reason":          {},
	"user_restricted": {},
	"status_code":     {},
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
