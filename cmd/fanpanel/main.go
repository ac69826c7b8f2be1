// cmd/fanpanel/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/fanctl/internal/config"
	"github.com/tamzrod/fanctl/internal/logging"
	"github.com/tamzrod/fanctl/internal/metrics"
	"github.com/tamzrod/fanctl/internal/operator"
	"github.com/tamzrod/fanctl/internal/poller"
	"github.com/tamzrod/fanctl/internal/shm"
	"github.com/tamzrod/fanctl/internal/snapshot"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: fanpanel <config.yaml>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1], os.Stdin, os.Stdout)
	cancel()
	if err != nil {
		log.Fatalf("fanpanel: %v", err)
	}
}

// run returns only after every opened channel has been released, so a
// start-up failure does not leave names behind.
func run(ctx context.Context, cfgPath string, in io.Reader, out io.Writer) error {
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
	logger := base.ForProcess("fanpanel")
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// --------------------
	// Channels (same names and capacities as the controller)
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

	panel, err := operator.New(sensorCount, sensors, registers, operator.Options{
		OnRegisters: func(r snapshot.RegisterSnapshot) { printRegisters(out, cfg, r) },
		Metrics:     m,
		Log:         logger.Named("panel"),
	})
	if err != nil {
		logger.Error("panel build failed", zap.Error(err))
		return err
	}

	var source *poller.Poller
	if cfg.SourceEnabled() {
		p, closePoller, err := poller.Build(cfg)
		if err != nil {
			logger.Error("poller build failed", zap.String("endpoint", cfg.Panel.Source.Endpoint), zap.Error(err))
			return err
		}
		defer func() { _ = closePoller() }()
		source = p
	}

	// --------------------
	// Run until signalled
	// --------------------

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return panel.Run(gctx) })

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen, reg, logger) })
	}

	if source != nil {
		polls := make(chan poller.PollResult)
		g.Go(func() error {
			source.Run(gctx, polls)
			return nil
		})
		g.Go(func() error { return feedPolls(gctx, panel, polls, m, logger.Named("source")) })
	}

	// The reader cannot be interrupted; it is left behind on shutdown.
	go func() {
		if err := feedLines(in, panel, logger); err != nil && !errors.Is(err, operator.ErrClosed) {
			logger.Warn("input reader stopped", zap.Error(err))
		}
	}()

	logger.Info("panel running",
		zap.Int("sensors", sensorCount),
		zap.Int("fans", fanCount),
		zap.Bool("source", cfg.SourceEnabled()),
	)

	if err := g.Wait(); err != nil {
		logger.Error("panel stopped", zap.Error(err))
		return err
	}
	logger.Info("panel stopped")
	return nil
}

// feedPolls forwards every polled temperature to the panel. Unchanged
// values are dropped by the panel itself.
func feedPolls(ctx context.Context, panel *operator.Panel, in <-chan poller.PollResult, m *metrics.Metrics, logger *logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-in:
			m.SourcePolled(res.Err)
			if res.Err != nil {
				logger.Warn("source poll failed", zap.Error(res.Err))
			}
			for id, t := range res.Temperatures {
				if err := panel.PublishSensor(id, t); err != nil {
					if errors.Is(err, operator.ErrClosed) {
						return nil
					}
					return err
				}
			}
		}
	}
}

// feedLines reads "<id> <temperature>" lines until EOF. Malformed lines are
// reported and skipped.
func feedLines(r io.Reader, panel *operator.Panel, logger *logging.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		id, value, err := parseLine(line)
		if err != nil {
			logger.Warn("bad input line", zap.String("line", line), zap.Error(err))
			continue
		}

		if err := panel.PublishSensor(id, value); err != nil {
			if errors.Is(err, snapshot.ErrSensorRange) {
				logger.Warn("bad sensor id", zap.Int("id", id), zap.Error(err))
				continue
			}
			return err
		}
	}
	return sc.Err()
}

func parseLine(line string) (int, float64, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("want \"<id> <temperature>\", got %d fields", len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("id: %w", err)
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("temperature: %w", err)
	}
	return id, value, nil
}

func printRegisters(w io.Writer, cfg *config.Config, r snapshot.RegisterSnapshot) {
	var b strings.Builder
	for i, v := range r.Slice() {
		if i > 0 {
			b.WriteString("  ")
		}
		name := fmt.Sprintf("fan%d", i)
		if i < len(cfg.Controller.Fans) && cfg.Controller.Fans[i].Name != "" {
			name = cfg.Controller.Fans[i].Name
		}
		fmt.Fprintf(&b, "%s=%d", name, v)
	}
	fmt.Fprintln(w, b.String())
}

type channel interface {
	Name() string
	Close() error
	Remove() error
}

func release(logger *logging.Logger, c channel) {
	if err := c.Close(); err != nil {
		logger.Warn("channel close failed", zap.String("name", c.Name()), zap.Error(err))
	}
	if err := c.Remove(); err != nil {
		logger.Warn("channel remove failed", zap.String("name", c.Name()), zap.Error(err))
	}
}
