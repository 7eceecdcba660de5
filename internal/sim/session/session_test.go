package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	out risk.Assessment
	err error
}

// gatedAssessor blocks each call until a reply is pushed.
type gatedAssessor struct {
	mu       sync.Mutex
	requests []risk.Request
	started  chan struct{}
	replies  chan reply
}

func newGatedAssessor() *gatedAssessor {
	return &gatedAssessor{
		started: make(chan struct{}, 8),
		replies: make(chan reply, 8),
	}
}

func (g *gatedAssessor) Assess(ctx context.Context, req risk.Request) (risk.Assessment, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	g.started <- struct{}{}
	select {
	case r := <-g.replies:
		return r.out, r.err
	case <-ctx.Done():
		return risk.Assessment{}, ctx.Err()
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	steps    int
	resets   int
	outcomes []string
}

func (m *recordingMetrics) ObserveStep(core.StepResult, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
}

func (m *recordingMetrics) ObserveReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *recordingMetrics) ObserveAssessment(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) snapshot() (int, int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps, m.resets, append([]string(nil), m.outcomes...)
}

type recordingPublisher struct {
	mu    sync.Mutex
	views []View
}

func (p *recordingPublisher) Publish(v View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, v)
}

func (p *recordingPublisher) last() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.views[len(p.views)-1]
}

func quietConfig() core.SimulationConfig {
	cfg := core.DefaultSimulationConfig()
	cfg.CollisionThreshold = 1e-12
	return cfg
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := New(quietConfig(), opts...)
	require.NoError(t, err)
	return s
}

func waitStarted(t *testing.T, g *gatedAssessor) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("assessor was never called")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultSimulationConfig()
	cfg.PathResolution = 1
	_, err := New(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestStepPublishesAndRecords(t *testing.T) {
	metrics := &recordingMetrics{}
	pub := &recordingPublisher{}
	s := newTestSession(t, WithMetricsRecorder(metrics), WithPublisher(pub))

	for i := 0; i < 10; i++ {
		s.Step(context.Background())
	}

	steps, _, _ := metrics.snapshot()
	assert.Equal(t, 10, steps)
	assert.Equal(t, 10, pub.last().TimeStep)
	assert.Equal(t, "active", pub.last().State)
	assert.Equal(t, 10, s.Snapshot().TimeStep)
}

func TestCollisionSetsStatusText(t *testing.T) {
	cfg := core.DefaultSimulationConfig()
	cfg.CollisionThreshold = 100
	s, err := New(cfg)
	require.NoError(t, err)

	res := s.Step(context.Background())
	require.True(t, res.JustCollided)

	v := s.View()
	assert.Equal(t, StatusCollided, v.Status)
	assert.Equal(t, "collided", v.State)
}

func TestStepViewMatchesStepResult(t *testing.T) {
	cfg := core.DefaultSimulationConfig()
	cfg.CollisionThreshold = 100
	pub := &recordingPublisher{}
	s, err := New(cfg, WithPublisher(pub))
	require.NoError(t, err)

	first := s.StepView(context.Background())
	assert.True(t, first.JustCollided)
	assert.Equal(t, 1, first.TimeStep)
	assert.Equal(t, StatusCollided, first.Status)
	assert.Equal(t, pub.last(), first.View)

	second := s.StepView(context.Background())
	assert.False(t, second.JustCollided)
	assert.Equal(t, "collided", second.State)

	raw, err := json.Marshal(second)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["just_collided"])
	assert.Contains(t, decoded, "time_step")
}

func TestRequestAssessmentWithoutAssessor(t *testing.T) {
	s := newTestSession(t)
	_, err := s.RequestAssessment(context.Background())
	assert.ErrorIs(t, err, ErrAssessmentDisabled)
}

func TestAssessmentCompletesWithVerdict(t *testing.T) {
	g := newGatedAssessor()
	metrics := &recordingMetrics{}
	s := newTestSession(t, WithAssessor(g), WithMetricsRecorder(metrics))
	for i := 0; i < 40; i++ {
		s.Step(context.Background())
	}
	rel, _ := s.sim.RelativeState()

	pending, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhasePending, pending.Phase)
	assert.NotEmpty(t, pending.ID)
	assert.Equal(t, risk.NewRequest(rel), pending.Request)
	assert.Equal(t, StatusCalculating, s.View().Status)

	waitStarted(t, g)
	echo := pending.Request
	g.replies <- reply{out: risk.Assessment{Verdict: risk.VerdictHigh, Input: &echo}}
	s.Wait()

	got := s.Assessment()
	assert.Equal(t, PhaseHighRisk, got.Phase)
	assert.Equal(t, pending.ID, got.ID)
	assert.True(t, got.Done())
	require.NotNil(t, got.Echo)
	assert.Equal(t, echo, *got.Echo)

	v := s.View()
	assert.Equal(t, StatusHighRisk, v.Status)
	assert.True(t, v.HighlightRings)

	_, _, outcomes := metrics.snapshot()
	assert.Equal(t, []string{outcomeHigh}, outcomes)
}

func TestSecondRequestWhilePendingIsRejected(t *testing.T) {
	g := newGatedAssessor()
	s := newTestSession(t, WithAssessor(g))

	first, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	waitStarted(t, g)

	current, err := s.RequestAssessment(context.Background())
	assert.ErrorIs(t, err, ErrAssessmentPending)
	assert.Equal(t, first.ID, current.ID)

	g.replies <- reply{out: risk.Assessment{Verdict: risk.VerdictLow}}
	s.Wait()
	assert.Equal(t, PhaseLowRisk, s.Assessment().Phase)
	assert.Equal(t, StatusLowRisk, s.View().Status)
}

func TestStaleAssessmentIsDiscardedAfterReset(t *testing.T) {
	g := newGatedAssessor()
	metrics := &recordingMetrics{}
	s := newTestSession(t, WithAssessor(g), WithMetricsRecorder(metrics))
	for i := 0; i < 25; i++ {
		s.Step(context.Background())
	}

	_, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	waitStarted(t, g)

	snap := s.Reset(context.Background())
	assert.Equal(t, uint64(1), snap.Epoch)

	g.replies <- reply{out: risk.Assessment{Verdict: risk.VerdictHigh}}
	s.Wait()

	got := s.Assessment()
	assert.Equal(t, PhaseIdle, got.Phase)
	assert.Equal(t, uint64(1), got.Epoch)
	assert.Equal(t, StatusReset, s.View().Status)
	assert.False(t, s.View().HighlightRings)

	_, resets, outcomes := metrics.snapshot()
	assert.Equal(t, 1, resets)
	assert.Equal(t, []string{outcomeStale}, outcomes)
}

func TestResetCancelsInflightAssessment(t *testing.T) {
	g := newGatedAssessor()
	s := newTestSession(t, WithAssessor(g), WithAssessmentTimeout(time.Minute))

	_, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	waitStarted(t, g)

	s.Reset(context.Background())

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reset did not cancel the in-flight assessment")
	}
	assert.Equal(t, PhaseIdle, s.Assessment().Phase)
}

func TestRequestAfterResetStartsFreshAssessment(t *testing.T) {
	g := newGatedAssessor()
	s := newTestSession(t, WithAssessor(g))

	_, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	waitStarted(t, g)
	s.Reset(context.Background())

	second, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Epoch)
	waitStarted(t, g)

	g.replies <- reply{out: risk.Assessment{Verdict: risk.VerdictLow}}
	g.replies <- reply{out: risk.Assessment{Verdict: risk.VerdictLow}}
	s.Wait()

	got := s.Assessment()
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, PhaseLowRisk, got.Phase)
}

func TestAssessmentFailureLeavesSimulationUntouched(t *testing.T) {
	g := newGatedAssessor()
	s := newTestSession(t, WithAssessor(g))
	for i := 0; i < 7; i++ {
		s.Step(context.Background())
	}
	before := s.Snapshot()

	_, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	waitStarted(t, g)
	g.replies <- reply{err: fmt.Errorf("%w: connection refused", risk.ErrUnavailable)}
	s.Wait()

	got := s.Assessment()
	assert.Equal(t, PhaseUnavailable, got.Phase)
	assert.Contains(t, got.Error, "connection refused")
	assert.Equal(t, StatusUnavailable, s.View().Status)
	assert.Equal(t, before, s.Snapshot())
}

func TestAssessmentTimeout(t *testing.T) {
	g := newGatedAssessor()
	s := newTestSession(t, WithAssessor(g), WithAssessmentTimeout(20*time.Millisecond))

	_, err := s.RequestAssessment(context.Background())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, PhaseUnavailable, s.Assessment().Phase)
}

func TestViewJSONFieldNames(t *testing.T) {
	s := newTestSession(t)
	s.Step(context.Background())

	raw, err := json.Marshal(s.View())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"epoch", "time_step", "state", "decay_factor", "debris", "satellite", "distance", "assessment"} {
		assert.Contains(t, decoded, key)
	}
	assert.NotContains(t, decoded, "status")
}

func TestConcurrentStepAndSnapshot(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Step(ctx)
				_ = s.Snapshot()
				_ = s.Rings()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800%core.DefaultPathResolution, s.Snapshot().TimeStep)
}
