// Package metrics wires the responder's cache and provider counters
// into prometheus/client_golang, served over its own listener the way
// pkg/common/startrpc/start.go spins up a dedicated Prometheus endpoint
// alongside the main RPC server (gated by the same "enable + own port"
// shape, here driven by internal/config instead of a discovery-port
// allocator).
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openimsdk/tools/log"
)

// Registry owns every collector the responder reports and the HTTP
// server exposing them.
type Registry struct {
	reg *prometheus.Registry

	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheEvictions  *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	EnumSnapshotAge *prometheus.GaugeVec

	srv *http.Server
}

// NewRegistry builds and registers every collector.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nssresponder", Subsystem: "cache", Name: "hits_total",
			Help: "Lookups served from the shared-memory or persistent cache without a provider refresh.",
		}, []string{"cache", "kind"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nssresponder", Subsystem: "cache", Name: "misses_total",
			Help: "Lookups that found nothing in the named cache.",
		}, []string{"cache", "kind"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nssresponder", Subsystem: "cache", Name: "evictions_total",
			Help: "Shared-memory slots evicted or invalidated.",
		}, []string{"reason"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nssresponder", Subsystem: "provider", Name: "refresh_latency_seconds",
			Help:    "Time from issuing a provider refresh to its completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nssresponder", Subsystem: "provider", Name: "errors_total",
			Help: "Provider refreshes that returned an error.",
		}, []string{"kind"}),
		EnumSnapshotAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nssresponder", Subsystem: "enum", Name: "snapshot_age_seconds",
			Help: "Age of the current enumeration snapshot for each object class.",
		}, []string{"class"}),
	}

	reg.MustRegister(r.CacheHits, r.CacheMisses, r.CacheEvictions, r.ProviderLatency, r.ProviderErrors, r.EnumSnapshotAge)
	return r
}

// Serve starts the metrics HTTP endpoint on addr and blocks until ctx
// is cancelled, mirroring start.go's "own listener, own goroutine" shape
// for the Prometheus port.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	r.srv = &http.Server{Handler: promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		_ = r.srv.Close()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		log.ZWarn(ctx, "metrics server exited", err, "addr", addr)
		return err
	}
}
