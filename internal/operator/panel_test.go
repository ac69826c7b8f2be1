package operator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/fanctl/internal/snapshot"
)

// ---- fakes ----

type fakeSink struct {
	out chan snapshot.SensorSnapshot
}

func (f *fakeSink) Publish(ctx context.Context, s snapshot.SensorSnapshot) error {
	select {
	case f.out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSink) Name() string { return "sensors" }

type fakeSource struct {
	in  chan snapshot.RegisterSnapshot
	err error
}

func (f *fakeSource) Consume(ctx context.Context) (snapshot.RegisterSnapshot, error) {
	if f.err != nil {
		return snapshot.RegisterSnapshot{}, f.err
	}
	select {
	case r := <-f.in:
		return r, nil
	case <-ctx.Done():
		return snapshot.RegisterSnapshot{}, ctx.Err()
	}
}

func (f *fakeSource) Name() string { return "registers" }

func newFakes() (*fakeSink, *fakeSource) {
	return &fakeSink{out: make(chan snapshot.SensorSnapshot)},
		&fakeSource{in: make(chan snapshot.RegisterSnapshot)}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func startPanel(t *testing.T, p *Panel) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

// ---- tests ----

func TestPanel_InitialFullPublish(t *testing.T) {
	sink, src := newFakes()
	p, err := New(3, sink, src, Options{})
	require.NoError(t, err)

	startPanel(t, p)

	first := receive(t, sink.out)
	assert.Equal(t, uint32(3), first.Count)
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(i), first.Sensors[i].ID)
		assert.Equal(t, snapshot.DefaultTemperature, first.Sensors[i].Value)
	}
}

func TestPanel_PublishesWholeSnapshotOnChange(t *testing.T) {
	sink, src := newFakes()
	p, err := New(3, sink, src, Options{})
	require.NoError(t, err)

	startPanel(t, p)
	receive(t, sink.out) // initial

	require.NoError(t, p.PublishSensor(2, 80))

	snap := receive(t, sink.out)
	assert.Equal(t, []float64{75, 75, 80}, snap.Values())
}

func TestPanel_UnchangedValueIsIgnored(t *testing.T) {
	sink, src := newFakes()
	p, err := New(1, sink, src, Options{})
	require.NoError(t, err)

	startPanel(t, p)
	receive(t, sink.out)

	require.NoError(t, p.PublishSensor(0, snapshot.DefaultTemperature))
	require.NoError(t, p.PublishSensor(0, math.NaN()))
	require.NoError(t, p.PublishSensor(0, math.NaN()))

	snap := receive(t, sink.out)
	assert.True(t, math.IsNaN(snap.Sensors[0].Value))

	select {
	case extra := <-sink.out:
		t.Fatalf("unexpected publish: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPanel_CoalescesPendingEdits(t *testing.T) {
	sink, src := newFakes()
	p, err := New(3, sink, src, Options{})
	require.NoError(t, err)

	// edits before Run start are folded into the initial publish
	require.NoError(t, p.PublishSensor(0, 10))
	require.NoError(t, p.PublishSensor(1, 30))
	require.NoError(t, p.PublishSensor(0, 11))

	startPanel(t, p)

	snap := receive(t, sink.out)
	assert.Equal(t, []float64{11, 30, 75}, snap.Values())
}

func TestPanel_SensorRange(t *testing.T) {
	sink, src := newFakes()
	p, err := New(2, sink, src, Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, p.PublishSensor(2, 40), snapshot.ErrSensorRange)
	assert.ErrorIs(t, p.PublishSensor(-1, 40), snapshot.ErrSensorRange)
}

func TestPanel_SubscribeRegisters(t *testing.T) {
	sink, src := newFakes()

	seen := make(chan snapshot.RegisterSnapshot, 1)
	p, err := New(1, sink, src, Options{OnRegisters: func(r snapshot.RegisterSnapshot) { seen <- r }})
	require.NoError(t, err)

	_, ok := p.SubscribeRegisters()
	assert.False(t, ok)

	startPanel(t, p)

	regs := snapshot.NewRegisterSnapshot(2)
	regs.Values[0], regs.Values[1] = 152, 114
	src.in <- regs

	assert.Equal(t, regs, receive(t, seen))

	got, ok := p.SubscribeRegisters()
	assert.True(t, ok)
	assert.Equal(t, []uint32{152, 114}, got.Slice())
}

func TestPanel_ClosedAfterRun(t *testing.T) {
	sink, src := newFakes()
	p, err := New(1, sink, src, Options{})
	require.NoError(t, err)

	cancel, done := startPanel(t, p)
	receive(t, sink.out)

	cancel()
	assert.NoError(t, receive(t, done))
	assert.ErrorIs(t, p.PublishSensor(0, 30), ErrClosed)
}

func TestPanel_ChannelFailure(t *testing.T) {
	sink, src := newFakes()
	src.err = errors.New("mapping gone")

	p, err := New(1, sink, src, Options{})
	require.NoError(t, err)

	_, done := startPanel(t, p)
	assert.ErrorIs(t, receive(t, done), src.err)
}

func TestNew_Validation(t *testing.T) {
	sink, src := newFakes()

	_, err := New(0, sink, src, Options{})
	assert.Error(t, err)

	_, err = New(snapshot.MaxSensors+1, sink, src, Options{})
	assert.Error(t, err)

	_, err = New(1, nil, src, Options{})
	assert.Error(t, err)
}
