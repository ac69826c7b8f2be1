// Package controller consumes sensor snapshots, derives fan pulse widths and
// publishes them.
//
// Two loops share one lock-protected aggregate: Ingress drains the sensor
// channel and marks the aggregate dirty when a value changes; Egress waits
// for dirty, computes the max temperature and publishes a register snapshot
// when that max differs from the one used last time.
package controller

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/snapshot"
)

// Config is the immutable controller geometry.
type Config struct {
	SensorCount int
	Capacities  []uint32 // one per fan, in fan order
	FanNames    []string // metric labels; optional
}

// Options carries optional collaborators. Zero values disable them.
type Options struct {
	Mirror  Mirror
	Metrics *metrics.Metrics
	Log     *logging.Logger
}

// Controller wires one Ingress and one Egress around a shared state.
type Controller struct {
	st      *state
	ingress *Ingress
	egress  *Egress
}

// New validates cfg and builds a controller reading src and writing sink.
func New(cfg Config, src SensorSource, sink RegisterSink, opts Options) (*Controller, error) {
	if cfg.SensorCount < 1 || cfg.SensorCount > snapshot.MaxSensors {
		return nil, fmt.Errorf("controller: sensor count %d out of range 1..%d", cfg.SensorCount, snapshot.MaxSensors)
	}
	if len(cfg.Capacities) < 1 || len(cfg.Capacities) > snapshot.MaxFans {
		return nil, fmt.Errorf("controller: fan count %d out of range 1..%d", len(cfg.Capacities), snapshot.MaxFans)
	}
	if src == nil || sink == nil {
		return nil, errors.New("controller: source and sink required")
	}

	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}

	st := newState(cfg.SensorCount)
	capacities := append([]uint32(nil), cfg.Capacities...)

	return &Controller{
		st: st,
		ingress: &Ingress{
			st:      st,
			src:     src,
			metrics: opts.Metrics,
			log:     log.Named("ingress"),
		},
		egress: &Egress{
			st:         st,
			sink:       sink,
			capacities: capacities,
			fans:       append([]string(nil), cfg.FanNames...),
			mirror:     opts.Mirror,
			metrics:    opts.Metrics,
			log:        log.Named("egress"),
		},
	}, nil
}

// Run starts both loops and blocks until ctx is cancelled or one of them fails.
// A cancelled ctx yields nil.
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.ingress.Run(gctx) })
	g.Go(func() error { return c.egress.Run(gctx) })

	return g.Wait()
}

// Ingress returns the sensor side.
func (c *Controller) Ingress() *Ingress { return c.ingress }

// Egress returns the register side.
func (c *Controller) Egress() *Egress { return c.egress }

// Sensors returns a copy of the last-known sensor snapshot.
func (c *Controller) Sensors() snapshot.SensorSnapshot { return c.st.current() }
