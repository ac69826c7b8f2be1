// internal/controller/ingress.go
package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/snapshot"
)

// SensorSource yields whole sensor snapshots. *shm.Channel[snapshot.SensorSnapshot] satisfies it.
type SensorSource interface {
	Consume(ctx context.Context) (snapshot.SensorSnapshot, error)
	Name() string
}

// Ingress drains the sensor channel into the shared state.
type Ingress struct {
	st      *state
	src     SensorSource
	metrics *metrics.Metrics
	log     *logging.Logger
}

// Run consumes until ctx is cancelled (nil) or the channel fails (error).
func (in *Ingress) Run(ctx context.Context) error {
	for {
		snap, err := in.src.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("ingress: consume %s: %w", in.src.Name(), err)
		}

		in.metrics.Consumed(in.src.Name())
		in.Apply(snap)
	}
}

// Apply compares snap with the last-known snapshot and signals egress on any difference.
func (in *Ingress) Apply(snap snapshot.SensorSnapshot) bool {
	changed, faulted := in.st.apply(snap)
	if !changed {
		return false
	}

	in.metrics.SensorChanged(faulted)
	if ce := in.log.Check(zap.DebugLevel, "sensor values changed"); ce != nil {
		ce.Write(
			zap.Float64s("values", snap.Values()),
			zap.Int("faulted", faulted),
		)
	}
	return true
}
