package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/debris-collision-sim/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Assessment outcome label values.
const (
	OutcomeHigh        = "high"
	OutcomeLow         = "low"
	OutcomeUnavailable = "unavailable"
	OutcomeStale       = "stale"
)

// SimCollector bundles Prometheus metrics for the simulation and its control
// surface.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Steps      prometheus.Counter
	Collisions prometheus.Counter
	Resets     prometheus.Counter

	DecayFactor prometheus.Gauge
	Separation  prometheus.Gauge
	Collided    prometheus.Gauge

	Assessments         *prometheus.CounterVec
	AssessmentDurations prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitsim_control_requests_total",
		Help: "Total number of handled control RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "orbitsim_control_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbitsim_control_request_duration_seconds",
		Help:    "Control RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "orbitsim_control_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_steps_total",
		Help: "Simulation ticks processed.",
	}), "orbitsim_steps_total")
	if err != nil {
		return nil, err
	}
	collisions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_collisions_total",
		Help: "Active to Collided transitions.",
	}), "orbitsim_collisions_total")
	if err != nil {
		return nil, err
	}
	resets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitsim_resets_total",
		Help: "Simulation resets.",
	}), "orbitsim_resets_total")
	if err != nil {
		return nil, err
	}

	decay, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitsim_decay_factor",
		Help: "Current debris decay factor.",
	}), "orbitsim_decay_factor")
	if err != nil {
		return nil, err
	}
	separation, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitsim_separation",
		Help: "Current debris to satellite distance in scene units.",
	}), "orbitsim_separation")
	if err != nil {
		return nil, err
	}
	collided, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitsim_collided",
		Help: "1 while the simulation is in the Collided state.",
	}), "orbitsim_collided")
	if err != nil {
		return nil, err
	}

	assessments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitsim_assessments_total",
		Help: "Completed risk assessments, labeled by outcome.",
	}, []string{"outcome"}), "orbitsim_assessments_total")
	if err != nil {
		return nil, err
	}
	assessmentDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitsim_assessment_duration_seconds",
		Help:    "Risk classifier round-trip latency in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "orbitsim_assessment_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:            gatherer,
		RPCRequests:         requests,
		RPCDurations:        durations,
		Steps:               steps,
		Collisions:          collisions,
		Resets:              resets,
		DecayFactor:         decay,
		Separation:          separation,
		Collided:            collided,
		Assessments:         assessments,
		AssessmentDurations: assessmentDurations,
	}, nil
}

// ObserveStep records one tick.
func (c *SimCollector) ObserveStep(res core.StepResult, decayFactor float64) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	if res.JustCollided {
		c.Collisions.Inc()
	}
	c.DecayFactor.Set(decayFactor)
	c.Separation.Set(res.Distance)
	if res.State == core.Collided {
		c.Collided.Set(1)
	} else {
		c.Collided.Set(0)
	}
}

// ObserveReset records a reset.
func (c *SimCollector) ObserveReset() {
	if c == nil {
		return
	}
	c.Resets.Inc()
	c.Collided.Set(0)
	c.DecayFactor.Set(1)
}

// ObserveAssessment records a finished assessment.
func (c *SimCollector) ObserveAssessment(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.Assessments.WithLabelValues(outcome).Inc()
	c.AssessmentDurations.Observe(took.Seconds())
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds collector to reg, returning the already-registered instance
// when an identical collector exists.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}
