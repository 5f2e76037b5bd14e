// Package metrics exposes the otel/Prometheus counters this core emits:
// resolver cache behaviour, download throughput, and install outcomes.
//
// Grounded on metrics/metrics.go, kept nearly verbatim: the same
// prometheus.New -> sdkmetric.NewMeterProvider -> otel.SetMeterProvider
// wiring and the same ListenAndServe(addr) helper, with the counters
// renamed from the teacher's serve-side download/upload domain to this
// repository's resolve/download/install domain.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// New wires a Prometheus-backed otel meter provider and registers every
// counter this package exposes.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/nodepm")

	if m.ResolveRequestsTotal, err = meter.Int64Counter("resolve_requests_total", metric.WithDescription("Total number of registry metadata fetches issued by the resolver")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create resolve_requests_total counter: %w", err)
	}
	if m.ResolveCacheHitsTotal, err = meter.Int64Counter("resolve_cache_hits_total", metric.WithDescription("Total number of resolver requests served from the persistent metadata cache instead of the registry")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create resolve_cache_hits_total counter: %w", err)
	}
	if m.DownloadsTotal, err = meter.Int64Counter("downloads_total", metric.WithDescription("Total number of tarballs extracted into the store")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloads_total counter: %w", err)
	}
	if m.DownloadedBytesTotal, err = meter.Int64Counter("downloaded_bytes_total", metric.WithDescription("Total tarball bytes streamed from registries")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}
	if m.InstallsTotal, err = meter.Int64Counter("installs_total", metric.WithDescription("Total number of packages hardlinked into node_modules")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create installs_total counter: %w", err)
	}
	if m.InstallScriptFailuresTotal, err = meter.Int64Counter("install_script_failures_total", metric.WithDescription("Total number of install-lifecycle scripts that exited non-zero")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create install_script_failures_total counter: %w", err)
	}

	return m, nil
}

// Metrics is the set of counters this core publishes.
type Metrics struct {
	ResolveRequestsTotal       metric.Int64Counter
	ResolveCacheHitsTotal      metric.Int64Counter
	DownloadsTotal             metric.Int64Counter
	DownloadedBytesTotal       metric.Int64Counter
	InstallsTotal              metric.Int64Counter
	InstallScriptFailuresTotal metric.Int64Counter
}

// ListenAndServe serves the /metrics Prometheus scrape endpoint.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementResolveRequest(ctx context.Context, name string) {
	if m.ResolveRequestsTotal == nil {
		return
	}
	m.ResolveRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", name)))
}

func (m Metrics) IncrementResolveCacheHit(ctx context.Context, name string) {
	if m.ResolveCacheHitsTotal == nil {
		return
	}
	m.ResolveCacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", name)))
}

func (m Metrics) IncrementDownload(ctx context.Context, name string, bytes int64) {
	if m.DownloadsTotal == nil || m.DownloadedBytesTotal == nil {
		return
	}
	m.DownloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", name)))
	m.DownloadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("package", name)))
}

func (m Metrics) IncrementInstall(ctx context.Context, name string) {
	if m.InstallsTotal == nil {
		return
	}
	m.InstallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", name)))
}

func (m Metrics) IncrementInstallScriptFailure(ctx context.Context, name, script string) {
	if m.InstallScriptFailuresTotal == nil {
		return
	}
	m.InstallScriptFailuresTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("package", name), attribute.String("script", script)))
}
