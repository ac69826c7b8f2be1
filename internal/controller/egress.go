// internal/controller/egress.go
package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tamzrod/fanctl/internal/duty"
	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/status"
)

// RegisterSink accepts whole register snapshots. *shm.Channel[snapshot.RegisterSnapshot] satisfies it.
type RegisterSink interface {
	Publish(ctx context.Context, regs snapshot.RegisterSnapshot) error
	Name() string
}

// Mirror receives every published snapshot. *writer.Mirror satisfies it.
type Mirror interface {
	Publish(regs snapshot.RegisterSnapshot, st status.Snapshot) error
}

// Egress turns aggregate changes into register publishes.
type Egress struct {
	st         *state
	sink       RegisterSink
	capacities []uint32
	fans       []string
	mirror     Mirror
	metrics    *metrics.Metrics
	log        *logging.Logger

	lastMax   float64
	hasLast   bool // false until the first publish, so the first aggregate always publishes even at 75
	publishes uint16
}

// Run waits for changes and publishes until ctx is cancelled (nil) or a publish fails (error).
func (e *Egress) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, e.st.wake)
	defer stop()

	for {
		maxTemperature, faulted, ok := e.st.await(ctx)
		if !ok {
			return nil
		}

		if _, err := e.Step(ctx, maxTemperature, faulted); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
}

// Step publishes for maxTemperature unless it equals the max used for the
// previous publish. It reports whether a publish happened.
func (e *Egress) Step(ctx context.Context, maxTemperature float64, faulted int) (bool, error) {
	if e.hasLast && maxTemperature == e.lastMax {
		e.metrics.Suppressed()
		e.log.Debug("max temperature unchanged, publish suppressed",
			zap.Float64("max_temperature", maxTemperature),
		)
		return false, nil
	}

	pct := duty.DutyCycle(maxTemperature)
	regs := duty.Compute(maxTemperature, e.capacities)

	e.log.Info("new max temperature",
		zap.Float64("max_temperature", maxTemperature),
		zap.Float64("previous", e.lastMax),
		zap.Float64("duty_cycle", pct),
	)

	if err := e.sink.Publish(ctx, regs); err != nil {
		return false, fmt.Errorf("egress: publish %s: %w", e.sink.Name(), err)
	}

	e.lastMax = maxTemperature
	e.hasLast = true
	e.publishes++

	values := regs.Slice()
	e.metrics.Published(e.sink.Name())
	e.metrics.RegistersPublished(maxTemperature, pct, e.fans, values)
	e.log.Info("registers published", zap.Uint32s("registers", values))

	if e.mirror != nil {
		st := status.FromControl(maxTemperature, pct, faulted > 0, e.publishes)
		if err := e.mirror.Publish(regs, st); err != nil {
			e.metrics.MirrorFailed()
			e.log.Warn("register mirror failed", zap.Error(err))
		}
	}

	return true, nil
}
