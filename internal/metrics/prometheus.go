// Package metrics exports media cache telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "mediacache"

// Prometheus implements the cache, resolver and transcoder observers.
// A nil *Prometheus is valid and records nothing.
type Prometheus struct {
	stores        *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storedBytes   prometheus.Counter
	retrieves     *prometheus.CounterVec
	resolves      *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	liveHandles   prometheus.Gauge
}

// NewPrometheus registers the cache metrics on reg. Collectors that are
// already registered under the same name are reused, so several caches in
// one process share their series.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	p := &Prometheus{}
	if p.stores, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stores_total",
		Help:      "Store calls by media kind and outcome.",
	}, []string{"kind", "outcome"})); err != nil {
		return nil, err
	}
	if p.storeDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_duration_seconds",
		Help:      "Latency of store calls including transcoding.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if p.storedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stored_bytes_total",
		Help:      "Bytes written to the cache, all variants included.",
	})); err != nil {
		return nil, err
	}
	if p.retrieves, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieves_total",
		Help:      "Retrieve calls by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.resolves, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolves_total",
		Help:      "Resolved references by form.",
	}, []string{"form"})); err != nil {
		return nil, err
	}
	if p.escalations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcode_escalations_total",
		Help:      "Budget escalation steps taken while encoding variants.",
	}, []string{"step"})); err != nil {
		return nil, err
	}
	if p.liveHandles, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_handles",
		Help:      "Handles currently registered.",
	})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

func (p *Prometheus) ObserveStore(kind, outcome string, bytes int64, d time.Duration) {
	if p == nil {
		return
	}
	p.stores.WithLabelValues(kind, outcome).Inc()
	p.storeDuration.WithLabelValues(kind).Observe(d.Seconds())
	if bytes > 0 {
		p.storedBytes.Add(float64(bytes))
	}
}

func (p *Prometheus) ObserveRetrieve(outcome string) {
	if p == nil {
		return
	}
	p.retrieves.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveResolve(form string) {
	if p == nil {
		return
	}
	p.resolves.WithLabelValues(form).Inc()
}

func (p *Prometheus) ObserveEscalation(step string) {
	if p == nil {
		return
	}
	p.escalations.WithLabelValues(step).Inc()
}

func (p *Prometheus) SetLiveHandles(n int) {
	if p == nil {
		return
	}
	p.liveHandles.Set(float64(n))
}
