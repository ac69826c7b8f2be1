// internal/controller/controller_test.go
package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/status"
)

// ---- fakes ----

type fakeSource struct {
	ch  chan snapshot.SensorSnapshot
	err error
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan snapshot.SensorSnapshot)}
}

func (f *fakeSource) Consume(ctx context.Context) (snapshot.SensorSnapshot, error) {
	if f.err != nil {
		return snapshot.SensorSnapshot{}, f.err
	}
	select {
	case s := <-f.ch:
		return s, nil
	case <-ctx.Done():
		return snapshot.SensorSnapshot{}, ctx.Err()
	}
}

func (f *fakeSource) Name() string { return "sensors" }

type fakeSink struct {
	mu  sync.Mutex
	got []snapshot.RegisterSnapshot
	out chan snapshot.RegisterSnapshot
	err error
}

func newFakeSink() *fakeSink {
	return &fakeSink{out: make(chan snapshot.RegisterSnapshot, 16)}
}

func (f *fakeSink) Publish(ctx context.Context, regs snapshot.RegisterSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.got = append(f.got, regs)
	f.mu.Unlock()
	f.out <- regs
	return nil
}

func (f *fakeSink) Name() string { return "registers" }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeMirror struct {
	regs []snapshot.RegisterSnapshot
	st   []status.Snapshot
	err  error
}

func (f *fakeMirror) Publish(regs snapshot.RegisterSnapshot, st status.Snapshot) error {
	f.regs = append(f.regs, regs)
	f.st = append(f.st, st)
	return f.err
}

func sensors(values ...float64) snapshot.SensorSnapshot {
	s := snapshot.NewSensorSnapshot(len(values))
	for i, v := range values {
		_ = s.Set(i, v)
	}
	return s
}

func newTestController(t *testing.T, src SensorSource, sink RegisterSink, opts Options) *Controller {
	t.Helper()
	c, err := New(Config{SensorCount: 3, Capacities: []uint32{200, 150}}, src, sink, opts)
	require.NoError(t, err)
	return c
}

// ---- ingress ----

func TestIngress_DirtyOnlyOnDifference(t *testing.T) {
	c := newTestController(t, newFakeSource(), newFakeSink(), Options{})
	in := c.Ingress()

	// defaults equal the initial state
	assert.False(t, in.Apply(snapshot.NewSensorSnapshot(3)))
	assert.False(t, c.st.dirty)

	assert.True(t, in.Apply(sensors(10, 30, 80)))
	assert.True(t, c.st.dirty)
	assert.Equal(t, []float64{10, 30, 80}, c.Sensors().Values())

	// identical publish: no change
	c.st.dirty = false
	assert.False(t, in.Apply(sensors(10, 30, 80)))
	assert.False(t, c.st.dirty)
}

func TestIngress_NonFiniteIsFailSafe(t *testing.T) {
	c := newTestController(t, newFakeSource(), newFakeSink(), Options{})
	in := c.Ingress()

	// NaN sanitizes to the default the state already holds
	assert.False(t, in.Apply(sensors(math.NaN(), 75, 75)))
	assert.Equal(t, 1, c.st.faulted)

	assert.True(t, in.Apply(sensors(20, math.Inf(1), 20)))
	assert.Equal(t, []float64{20, snapshot.DefaultTemperature, 20}, c.Sensors().Values())
	assert.Equal(t, 1, c.st.faulted)
}

func TestIngress_IDChangeCounts(t *testing.T) {
	c := newTestController(t, newFakeSource(), newFakeSink(), Options{})

	s := snapshot.NewSensorSnapshot(3)
	s.Sensors[1].ID = 7
	assert.True(t, c.Ingress().Apply(s))
}

func TestIngress_ShortSnapshotComparesPrefix(t *testing.T) {
	c := newTestController(t, newFakeSource(), newFakeSink(), Options{})

	assert.True(t, c.Ingress().Apply(sensors(30)))
	assert.Equal(t, []float64{30, 75, 75}, c.Sensors().Values())
}

// ---- egress ----

func TestEgress_SuppressesUnchangedMax(t *testing.T) {
	sink := newFakeSink()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := newTestController(t, newFakeSource(), sink, Options{Metrics: m})
	e := c.Egress()
	ctx := context.Background()

	published, err := e.Step(ctx, 80, 0)
	require.NoError(t, err)
	assert.True(t, published)

	published, err = e.Step(ctx, 80, 0)
	require.NoError(t, err)
	assert.False(t, published)

	published, err = e.Step(ctx, 60, 0)
	require.NoError(t, err)
	assert.True(t, published)

	require.Equal(t, 2, sink.count())
	assert.Equal(t, []uint32{200, 150}, sink.got[0].Slice())
	assert.Equal(t, []uint32{152, 114}, sink.got[1].Slice())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegisterPublishes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuppressedPublishes))
	assert.Equal(t, 76.0, testutil.ToFloat64(m.DutyCycle))
}

func TestEgress_FirstAggregateAlwaysPublishes(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, newFakeSource(), sink, Options{})

	// zero is a legitimate max; it must not be mistaken for "previous"
	published, err := c.Egress().Step(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, []uint32{40, 30}, sink.got[0].Slice())
}

func TestEgress_FirstAggregateAtDefaultPublishes(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, newFakeSource(), sink, Options{})

	published, err := c.Egress().Step(context.Background(), snapshot.DefaultTemperature, 0)
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, []uint32{200, 150}, sink.got[0].Slice())
}

func TestEgress_MirrorReceivesStatus(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("link down")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := newTestController(t, newFakeSource(), newFakeSink(), Options{Mirror: mirror, Metrics: m})

	// mirror failures never fail the step
	published, err := c.Egress().Step(context.Background(), 60, 1)
	require.NoError(t, err)
	assert.True(t, published)

	require.Len(t, mirror.st, 1)
	assert.Equal(t, status.HealthFailSafe, mirror.st[0].Health)
	assert.Equal(t, uint16(760), mirror.st[0].DutyCycle)
	assert.Equal(t, int16(600), mirror.st[0].MaxTemperature)
	assert.Equal(t, uint16(1), mirror.st[0].Publishes)
	assert.Equal(t, []uint32{152, 114}, mirror.regs[0].Slice())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MirrorErrors))
}

func TestEgress_PublishFailure(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("boom")
	c := newTestController(t, newFakeSource(), sink, Options{})

	_, err := c.Egress().Step(context.Background(), 60, 0)
	require.Error(t, err)

	// a failed publish is not remembered: the same max is retried
	sink.err = nil
	published, err := c.Egress().Step(context.Background(), 60, 0)
	require.NoError(t, err)
	assert.True(t, published)
}

// ---- run ----

func TestRun_EndToEndWithFakes(t *testing.T) {
	src := newFakeSource()
	sink := newFakeSink()
	c := newTestController(t, src, sink, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	recv := func() snapshot.RegisterSnapshot {
		select {
		case r := <-sink.out:
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("no register publish")
			return snapshot.RegisterSnapshot{}
		}
	}

	src.ch <- sensors(10, 30, 80)
	assert.Equal(t, []uint32{200, 150}, recv().Slice())

	src.ch <- sensors(10, 30, 60)
	assert.Equal(t, []uint32{152, 114}, recv().Slice())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_SourceFailureStopsBothLoops(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("mapping gone")

	c := newTestController(t, src, newFakeSink(), Options{})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, src.err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNew_Validation(t *testing.T) {
	src, sink := newFakeSource(), newFakeSink()

	_, err := New(Config{SensorCount: 0, Capacities: []uint32{1}}, src, sink, Options{})
	assert.Error(t, err)

	_, err = New(Config{SensorCount: 1}, src, sink, Options{})
	assert.Error(t, err)

	_, err = New(Config{SensorCount: 1, Capacities: []uint32{1}}, nil, sink, Options{})
	assert.Error(t, err)
}
