package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FleetCollector bundles Prometheus metrics for the control plane and
// provides helpers to wire them into HTTP handlers.
type FleetCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	FleetPools     prometheus.Gauge
	FleetInstances prometheus.Gauge

	RequestsServed  prometheus.Counter
	RequestsNoPool  prometheus.Counter
	HealingApplied  prometheus.Counter
	HealingFailed   prometheus.Counter
	CycleDuration   prometheus.Histogram
}

// NewFleetCollector registers the fleet metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewFleetCollector(reg prometheus.Registerer) (*FleetCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "Total number of handled control-API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "fleet_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_http_request_duration_seconds",
		Help:    "Control-API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "fleet_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	pools, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_pools",
		Help: "Current number of registered resource pools.",
	}), "fleet_pools")
	if err != nil {
		return nil, err
	}
	instances, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_instances",
		Help: "Current number of service instances across the fleet.",
	}), "fleet_instances")
	if err != nil {
		return nil, err
	}

	served, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_requests_served_total",
		Help: "Requests served, from pools or edge nodes.",
	}), "fleet_requests_served_total")
	if err != nil {
		return nil, err
	}
	noPool, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_requests_no_pool_total",
		Help: "Requests for which no eligible pool was available.",
	}), "fleet_requests_no_pool_total")
	if err != nil {
		return nil, err
	}
	healed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_healing_actions_total",
		Help: "Healing actions successfully applied.",
	}), "fleet_healing_actions_total")
	if err != nil {
		return nil, err
	}
	healFailed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_healing_failures_total",
		Help: "Healing actions abandoned after retry exhaustion.",
	}), "fleet_healing_failures_total")
	if err != nil {
		return nil, err
	}
	cycleDur, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_cycle_duration_seconds",
		Help:    "Duration of one full management cycle.",
		Buckets: prometheus.DefBuckets,
	}), "fleet_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &FleetCollector{
		gatherer:       gatherer,
		HTTPRequests:   requests,
		HTTPDurations:  durations,
		FleetPools:     pools,
		FleetInstances: instances,
		RequestsServed: served,
		RequestsNoPool: noPool,
		HealingApplied: healed,
		HealingFailed:  healFailed,
		CycleDuration:  cycleDur,
	}, nil
}

// Middleware records request counts and durations for the control API.
// route should be the chi route pattern, not the raw URL, to bound label
// cardinality.
func (c *FleetCollector) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			if c.HTTPRequests != nil {
				c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
			}
			if c.HTTPDurations != nil {
				c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FleetCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

//
// ---------- core.FleetMetrics ----------
//

// ObserveCycle records one management cycle's duration.
func (c *FleetCollector) ObserveCycle(d time.Duration) {
	if c == nil || c.CycleDuration == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
}

// SetFleetCounts drives the pool/instance gauges from the cycle engine.
func (c *FleetCollector) SetFleetCounts(pools, instances int) {
	if c == nil {
		return
	}
	if c.FleetPools != nil {
		c.FleetPools.Set(float64(pools))
	}
	if c.FleetInstances != nil {
		c.FleetInstances.Set(float64(instances))
	}
}

// AddRequests accumulates served and unroutable request counts.
func (c *FleetCollector) AddRequests(served, noPool int) {
	if c == nil {
		return
	}
	if c.RequestsServed != nil && served > 0 {
		c.RequestsServed.Add(float64(served))
	}
	if c.RequestsNoPool != nil && noPool > 0 {
		c.RequestsNoPool.Add(float64(noPool))
	}
}

// AddHealingActions accumulates applied and failed healing actions.
func (c *FleetCollector) AddHealingActions(applied, failed int) {
	if c == nil {
		return
	}
	if c.HealingApplied != nil && applied > 0 {
		c.HealingApplied.Add(float64(applied))
	}
	if c.HealingFailed != nil && failed > 0 {
		c.HealingFailed.Add(float64(failed))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
