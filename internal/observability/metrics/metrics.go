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
	roleTransitions  metric.Int64Counter
	joinAttempts     metric.Int64Counter
	codeRotations    metric.Int64Counter
	communityActions metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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
		name = "atrium"
	}
	meter := provider.Meter(name)

	roleTransitions, err := meter.Int64Counter("atrium_role_transitions_total")
	if err != nil {
		return nil, err
	}
	joinAttempts, err := meter.Int64Counter("atrium_join_attempts_total")
	if err != nil {
		return nil, err
	}
	codeRotations, err := meter.Int64Counter("atrium_invite_code_rotations_total")
	if err != nil {
		return nil, err
	}
	communityActions, err := meter.Int64Counter("atrium_community_actions_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("atrium_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		roleTransitions:  roleTransitions,
		joinAttempts:     joinAttempts,
		codeRotations:    codeRotations,
		communityActions: communityActions,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordRoleTransition increments role transition counts.
func (m *Metrics) RecordRoleTransition(ctx context.Context, role string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("role", strings.TrimSpace(role)))
	m.roleTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJoinAttempt increments join attempt counts by entry path and result.
func (m *Metrics) RecordJoinAttempt(ctx context.Context, path, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("join_path", strings.TrimSpace(path)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.joinAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCodeRotation increments invite code rotation counts.
func (m *Metrics) RecordCodeRotation(ctx context.Context, codeType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("code_type", strings.TrimSpace(codeType)))
	m.codeRotations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCommunityAction increments destructive action counts.
func (m *Metrics) RecordCommunityAction(ctx context.Context, action, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.communityActions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"role":        {},
	"join_path":   {},
	"result":      {},
	"code_type":   {},
	"action":      {},
	"endpoint":    {},
	"reason":      {},
	"status_code": {},
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
