// Package operator is the operator-facing side of the channel pair: it
// publishes sensor edits and keeps the latest register snapshot for display.
package operator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/snapshot"
)

// ErrClosed is returned by PublishSensor once Run has stopped.
var ErrClosed = errors.New("operator: panel closed")

// SensorSink accepts whole sensor snapshots. *shm.Channel[snapshot.SensorSnapshot] satisfies it.
type SensorSink interface {
	Publish(ctx context.Context, s snapshot.SensorSnapshot) error
	Name() string
}

// RegisterSource yields whole register snapshots. *shm.Channel[snapshot.RegisterSnapshot] satisfies it.
type RegisterSource interface {
	Consume(ctx context.Context) (snapshot.RegisterSnapshot, error)
	Name() string
}

// Options carries optional collaborators.
type Options struct {
	// OnRegisters is called from the receive loop after each consumed snapshot.
	OnRegisters func(snapshot.RegisterSnapshot)

	Metrics *metrics.Metrics
	Log     *logging.Logger
}

// Panel holds the operator's sensor values and the last received registers.
type Panel struct {
	sink SensorSink
	src  RegisterSource
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	sensors snapshot.SensorSnapshot
	pending [snapshot.MaxSensors]bool
	dirty   bool
	closed  bool
	regs    snapshot.RegisterSnapshot
	hasRegs bool
}

// New returns a panel for sensorCount sensors. Every sensor starts at the
// fail-safe default and is pending, so the first publish carries all of them.
func New(sensorCount int, sink SensorSink, src RegisterSource, opts Options) (*Panel, error) {
	if sensorCount < 1 || sensorCount > snapshot.MaxSensors {
		return nil, fmt.Errorf("operator: sensor count %d out of range 1..%d", sensorCount, snapshot.MaxSensors)
	}
	if sink == nil || src == nil {
		return nil, errors.New("operator: sink and source required")
	}

	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}

	p := &Panel{
		sink:    sink,
		src:     src,
		opts:    opts,
		log:     log,
		sensors: snapshot.NewSensorSnapshot(sensorCount),
		dirty:   true,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < sensorCount; i++ {
		p.pending[i] = true
	}
	return p, nil
}

// PublishSensor records a new value for sensor id and schedules a publish.
// Unchanged values are ignored. NaN is accepted and marks the sensor faulted.
func (p *Panel) PublishSensor(id int, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if id < 0 || id >= p.sensors.Len() {
		return fmt.Errorf("%w: id=%d count=%d", snapshot.ErrSensorRange, id, p.sensors.Len())
	}
	if same(p.sensors.Sensors[id].Value, value) {
		return nil
	}

	p.sensors.Sensors[id] = snapshot.Sensor{ID: int32(id), Value: value}
	p.pending[id] = true
	p.dirty = true
	p.cond.Signal()
	return nil
}

// SubscribeRegisters returns the latest register snapshot and whether one
// has been received yet.
func (p *Panel) SubscribeRegisters() (snapshot.RegisterSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs, p.hasRegs
}

// Sensors returns the operator's current sensor values.
func (p *Panel) Sensors() snapshot.SensorSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sensors
}

// Run drives the publish and receive loops until ctx is cancelled (nil) or a
// channel fails (error). The panel is closed afterwards.
func (p *Panel) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(gctx, p.close)
	defer stop()

	g.Go(func() error { return p.publishLoop(gctx) })
	g.Go(func() error { return p.receiveLoop(gctx) })

	err := g.Wait()
	p.close()
	return err
}

func (p *Panel) close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Panel) publishLoop(ctx context.Context) error {
	for {
		snap, ids, ok := p.nextPublish()
		if !ok {
			return nil
		}

		if err := p.sink.Publish(ctx, snap); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("operator: publish %s: %w", p.sink.Name(), err)
		}

		p.opts.Metrics.Published(p.sink.Name())
		p.log.Debug("sensor snapshot published",
			zap.Ints("changed", ids),
			zap.Float64s("values", snap.Values()),
		)
	}
}

// nextPublish waits for pending edits and takes a whole snapshot of them.
// Sensor ids are re-asserted on every entry.
func (p *Panel) nextPublish() (snapshot.SensorSnapshot, []int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.dirty && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return snapshot.SensorSnapshot{}, nil, false
	}

	var ids []int
	for i := 0; i < p.sensors.Len(); i++ {
		p.sensors.Sensors[i].ID = int32(i)
		if p.pending[i] {
			ids = append(ids, i)
			p.pending[i] = false
		}
	}
	p.dirty = false
	return p.sensors, ids, true
}

func (p *Panel) receiveLoop(ctx context.Context) error {
	for {
		regs, err := p.src.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("operator: consume %s: %w", p.src.Name(), err)
		}

		p.mu.Lock()
		p.regs = regs
		p.hasRegs = true
		p.mu.Unlock()

		p.opts.Metrics.Consumed(p.src.Name())
		p.log.Info("registers received", zap.Uint32s("registers", regs.Slice()))

		if p.opts.OnRegisters != nil {
			p.opts.OnRegisters(regs)
		}
	}
}

// same treats two NaNs as equal so repeated faults do not republish.
func same(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
