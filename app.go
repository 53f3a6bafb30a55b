package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/acquisition"
	"github.com/ericogr/icm42688p-monitor/pkg/bus"
	"github.com/ericogr/icm42688p-monitor/pkg/config"
	"github.com/ericogr/icm42688p-monitor/pkg/edge"
	"github.com/ericogr/icm42688p-monitor/pkg/metrics"
	"github.com/ericogr/icm42688p-monitor/pkg/output"
	"github.com/ericogr/icm42688p-monitor/pkg/output/console"
	mqttout "github.com/ericogr/icm42688p-monitor/pkg/output/mqtt"
	"github.com/ericogr/icm42688p-monitor/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

func run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				log.WithError(err).Error("metrics server")
			}
		}()
	}

	outs, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := outs.Close(); err != nil {
			log.WithError(err).Warn("close outputs")
		}
	}()
	return acquire(ctx, cfg, outs, collector)
}

// acquire runs the loop until it fails or ctx is cancelled. Cancellation is
// a clean exit.
func acquire(ctx context.Context, cfg config.Config, sink acquisition.Sink, collector *metrics.Collector) error {
	units, err := sensor.ParseUnits(cfg.Device.Units)
	if err != nil {
		return err
	}
	loop := acquisition.New(sink,
		acquisition.WithMaxBatch(cfg.GPIO.MaxBatch),
		acquisition.WithUnits(units),
		acquisition.WithMetrics(collector),
		acquisition.WithLogger(log.WithField("line", cfg.GPIO.Line)),
	)
	err = loop.Init(
		func() (acquisition.Measurer, error) {
			dev, err := openDevice(cfg)
			if err != nil {
				return nil, err
			}
			return dev, nil
		},
		func() (edge.Monitor, error) { return openLine(cfg) },
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := loop.Close(); err != nil {
			log.WithError(err).Warn("release hardware")
		}
	}()

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func probe(w io.Writer, cfg config.Config) error {
	dev, err := initDevice(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()
	_, err = fmt.Fprintln(w, dev.State())
	return err
}

func openBus(cfg config.Config) (bus.Bus, error) {
	if cfg.SensorType == "simulation" {
		return sensor.NewSimBus(), nil
	}
	return bus.OpenI2C(cfg.I2C.Bus, uint16(cfg.I2C.Address))
}

func deviceOptions(c config.DeviceConfig) sensor.Options {
	return sensor.Options{
		ResetDelay: time.Duration(c.ResetDelayMs) * time.Millisecond,
		WriteDelay: time.Duration(c.WriteDelayMs) * time.Millisecond,
	}
}

func initDevice(cfg config.Config) (*sensor.Device, error) {
	b, err := openBus(cfg)
	if err != nil {
		return nil, err
	}
	dev, err := sensor.Initialize(b, deviceOptions(cfg.Device))
	if err != nil {
		if c, ok := b.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return dev, nil
}

// openDevice initializes the IMU and applies the configured scales, rates
// and interrupt routing in that order.
func openDevice(cfg config.Config) (*sensor.Device, error) {
	dev, err := initDevice(cfg)
	if err != nil {
		return nil, err
	}
	if err := configureDevice(dev, cfg.Device); err != nil {
		_ = dev.Close()
		return nil, err
	}
	log.WithFields(log.Fields{"sensor": cfg.SensorType, "state": dev.State().String()}).Info("device configured")
	return dev, nil
}

type configStep struct {
	name string
	fn   func() error
}

func configureDevice(dev *sensor.Device, c config.DeviceConfig) error {
	as, err := sensor.ParseAccelScale(c.AccelScale)
	if err != nil {
		return err
	}
	ao, err := sensor.ParseODR(c.AccelODR)
	if err != nil {
		return err
	}
	gs, err := sensor.ParseGyroScale(c.GyroScale)
	if err != nil {
		return err
	}
	gr, err := sensor.ParseODR(c.GyroODR)
	if err != nil {
		return err
	}
	steps := []configStep{
		{"accel scale", func() error { return dev.SetAccelScale(as) }},
		{"accel odr", func() error { return dev.SetAccelODR(ao) }},
		{"gyro scale", func() error { return dev.SetGyroScale(gs) }},
		{"gyro odr", func() error { return dev.SetGyroODR(gr) }},
	}
	if c.DataReadyInterrupt {
		steps = append(steps, configStep{"data ready interrupt", dev.EnableDataReadyInterrupt})
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("configure %s: %w", s.name, err)
		}
	}
	return nil
}

func openLine(cfg config.Config) (edge.Monitor, error) {
	g := cfg.GPIO
	if cfg.SensorType == "simulation" {
		period := time.Duration(float64(time.Second) / cfg.SimRateHz)
		return edge.NewSim(uint(g.Line), period), nil
	}
	if g.Backend == "periph" {
		p, err := edge.RequestPin(g.Pin)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	l, err := edge.Request(g.Chip, g.Line, g.Consumer, g.EventBuffer)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// initOutputs builds the configured outputs. Already opened outputs are
// closed when a later one fails.
func initOutputs(cfg config.Config) (output.Multi, error) {
	outs := make(output.Multi, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		var o output.Output
		switch strings.ToLower(oc.Type) {
		case "console":
			o = console.NewConsole()
		case "mqtt":
			if oc.MQTT == nil {
				_ = outs.Close()
				return nil, errors.New("mqtt output without mqtt section")
			}
			m, err := mqttout.NewMQTT(*oc.MQTT)
			if err != nil {
				_ = outs.Close()
				return nil, err
			}
			o = m
		default:
			_ = outs.Close()
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
		outs = append(outs, output.Throttle(o, time.Duration(oc.IntervalMs)*time.Millisecond))
		log.WithFields(log.Fields{"type": oc.Type, "interval_ms": oc.IntervalMs}).Debug("output ready")
	}
	return outs, nil
}
