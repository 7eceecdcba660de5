package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/debris-collision-sim/core"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newCollector(t *testing.T) (*SimCollector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	return c, reg
}

func TestObserveStepTracksCollisionTransitions(t *testing.T) {
	c, _ := newCollector(t)

	c.ObserveStep(core.StepResult{Distance: 1.5, State: core.Active}, 0.99)
	c.ObserveStep(core.StepResult{Distance: 0.05, State: core.Collided, JustCollided: true}, 0.98)
	c.ObserveStep(core.StepResult{Distance: 0.05, State: core.Collided}, 0.98)

	if got := testutil.ToFloat64(c.Steps); got != 3 {
		t.Fatalf("orbitsim_steps_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Collisions); got != 1 {
		t.Fatalf("orbitsim_collisions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Collided); got != 1 {
		t.Fatalf("orbitsim_collided = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.DecayFactor); got != 0.98 {
		t.Fatalf("orbitsim_decay_factor = %v, want 0.98", got)
	}

	c.ObserveReset()
	if got := testutil.ToFloat64(c.Collided); got != 0 {
		t.Fatalf("orbitsim_collided after reset = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.Resets); got != 1 {
		t.Fatalf("orbitsim_resets_total = %v, want 1", got)
	}
}

func TestObserveAssessmentLabelsOutcome(t *testing.T) {
	c, reg := newCollector(t)

	c.ObserveAssessment(OutcomeHigh, 20*time.Millisecond)
	c.ObserveAssessment(OutcomeUnavailable, time.Second)
	c.ObserveAssessment(OutcomeUnavailable, time.Second)

	if got := testutil.ToFloat64(c.Assessments.WithLabelValues(OutcomeUnavailable)); got != 2 {
		t.Fatalf("unavailable assessments = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "orbitsim_assessment_duration_seconds", nil); count != 3 {
		t.Fatalf("assessment duration sample_count = %d, want 3", count)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveStep(core.StepResult{}, 1)
	c.ObserveReset()
	c.ObserveAssessment(OutcomeLow, time.Millisecond)
}

func TestNewSimCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.Steps.Inc()
	if got := testutil.ToFloat64(second.Steps); got != 1 {
		t.Fatalf("collectors should share registered metrics, got %v", got)
	}
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	c, reg := newCollector(t)

	interceptor := c.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/orbitsim.v1.SimulationControl/Step"}

	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.FailedPrecondition, "boom")
	})

	if got := testutil.ToFloat64(c.RPCRequests.WithLabelValues("SimulationControl", "Step", "OK")); got != 1 {
		t.Fatalf("OK requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.RPCRequests.WithLabelValues("SimulationControl", "Step", "FailedPrecondition")); got != 1 {
		t.Fatalf("FailedPrecondition requests = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "orbitsim_control_request_duration_seconds", map[string]string{
		"service": "SimulationControl",
		"method":  "Step",
	}); count != 2 {
		t.Fatalf("duration sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesSimulationMetrics(t *testing.T) {
	c, _ := newCollector(t)
	c.ObserveStep(core.StepResult{Distance: 2}, 0.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"orbitsim_steps_total",
		"orbitsim_decay_factor 0.5",
		"orbitsim_separation 2",
		"orbitsim_collided 0",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":                                     {"unknown", "unknown"},
		"/orbitsim.v1.SimulationControl/Reset": {"SimulationControl", "Reset"},
		"Reset":                                {"unknown", "unknown"},
		"/grpc.health.v1.Health/Check":         {"Health", "Check"},
	}
	for in, want := range cases {
		s, m := SplitMethod(in)
		if s != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", in, s, m, want[0], want[1])
		}
	}
}

func TestInitTracingStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(buf.String(), "probe") {
		t.Fatalf("expected exported span in stdout output, got %q", buf.String())
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil); err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil); err != nil {
		t.Fatalf("disabled tracing should not fail: %v", err)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
