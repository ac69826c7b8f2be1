// cmd/fanctl/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/fanctl/internal/config"
	"github.com/tamzrod/fanctl/internal/controller"
	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/shm"
	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: fanctl <config.yaml>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1])
	cancel()
	if err != nil {
		log.Fatalf("fanctl: %v", err)
	}
}

// run returns only after every opened channel has been released, so a
// start-up failure does not leave names behind.
func run(ctx context.Context, cfgPath string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	base, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	logger := base.ForProcess("fanctl")
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --------------------
	// Channels
	// --------------------

	sensorCount := cfg.Controller.SensorCount
	fanCount := cfg.FanCount()

	sensors, err := shm.Open(ctx, shm.Options{
		Dir:      cfg.Channels.Dir,
		Name:     cfg.Channels.Sensors,
		Capacity: sensorCount,
	}, snapshot.NewSensorSnapshot(sensorCount))
	if err != nil {
		logger.Error("sensor channel open failed", zap.String("name", cfg.Channels.Sensors), zap.Error(err))
		return err
	}
	defer release(logger, sensors)

	registers, err := shm.Open(ctx, shm.Options{
		Dir:      cfg.Channels.Dir,
		Name:     cfg.Channels.Registers,
		Capacity: fanCount,
	}, snapshot.NewRegisterSnapshot(fanCount))
	if err != nil {
		logger.Error("register channel open failed", zap.String("name", cfg.Channels.Registers), zap.Error(err))
		return err
	}
	defer release(logger, registers)

	logger.Info("channels ready",
		zap.String("sensors", sensors.Name()),
		zap.Bool("sensors_created", sensors.Created()),
		zap.String("registers", registers.Name()),
		zap.Bool("registers_created", registers.Created()),
	)

	// --------------------
	// Mirror (optional)
	// --------------------

	mirror, closeMirror, err := writer.BuildMirror(cfg)
	if err != nil {
		logger.Error("mirror build failed", zap.Error(err))
		return err
	}
	defer func() { _ = closeMirror() }()

	opts := controller.Options{Metrics: m, Log: logger}
	if mirror != nil {
		opts.Mirror = mirror
		logger.Info("register mirror enabled",
			zap.String("protocol", cfg.Mirror.Protocol),
			zap.String("endpoint", cfg.Mirror.Endpoint),
			zap.Bool("status", mirror.StatusEnabled()),
		)
	}

	fans := make([]string, fanCount)
	for i, f := range cfg.Controller.Fans {
		fans[i] = f.Name
	}

	ctrl, err := controller.New(controller.Config{
		SensorCount: sensorCount,
		Capacities:  cfg.Capacities(),
		FanNames:    fans,
	}, sensors, registers, opts)
	if err != nil {
		logger.Error("controller build failed", zap.Error(err))
		return err
	}

	// --------------------
	// Run until signalled
	// --------------------

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen, reg, logger) })
	}
	g.Go(func() error { return ctrl.Run(gctx) })

	logger.Info("controller running",
		zap.Int("sensors", sensorCount),
		zap.Uint32s("capacities", cfg.Capacities()),
	)

	if err := g.Wait(); err != nil {
		logger.Error("controller stopped", zap.Error(err))
		return err
	}
	logger.Info("controller stopped")
	return nil
}

type channel interface {
	Name() string
	Close() error
	Remove() error
}

// release unmaps the channel and unlinks its name. Either side may unlink
// first; a missing name is not an error.
func release(logger *logging.Logger, c channel) {
	if err := c.Close(); err != nil {
		logger.Warn("channel close failed", zap.String("name", c.Name()), zap.Error(err))
	}
	if err := c.Remove(); err != nil {
		logger.Warn("channel remove failed", zap.String("name", c.Name()), zap.Error(err))
	}
}
