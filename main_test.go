package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/acquisition"
	"github.com/ericogr/icm42688p-monitor/pkg/config"
	"github.com/ericogr/icm42688p-monitor/pkg/edge"
	"github.com/ericogr/icm42688p-monitor/pkg/metrics"
	"github.com/ericogr/icm42688p-monitor/pkg/output/console"
	"github.com/ericogr/icm42688p-monitor/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.SensorType = "simulation"
	cfg.SimRateHz = 1000
	return cfg
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "Console", IntervalMs: 123}}}
	entries, err := initOutputs(cfg)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	_, plain := entries[0].(*console.ConsoleOutput)
	assert.True(t, plain, "zero interval is not throttled")
	_, plain = entries[1].(*console.ConsoleOutput)
	assert.False(t, plain)
}

func TestInitOutputsRejectsUnknown(t *testing.T) {
	_, err := initOutputs(config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "file"}}})
	assert.Error(t, err)
	_, err = initOutputs(config.Config{Outputs: []config.OutputConfig{{Type: "mqtt"}}})
	assert.Error(t, err)
}

func TestConfigureDevice(t *testing.T) {
	s := sensor.NewSimBus()
	dev, err := sensor.Initialize(s, sensor.Options{})
	require.NoError(t, err)

	require.NoError(t, configureDevice(dev, config.DefaultConfig().Device))

	assert.Equal(t, byte(0x48), s.Get(0x50), "ACCEL_CONFIG0 4g/100Hz")
	assert.Equal(t, byte(0x08), s.Get(0x4F), "GYRO_CONFIG0 2000dps/100Hz")
	assert.Equal(t, byte(0x1B), s.Get(0x14), "INT_CONFIG")
	assert.Equal(t, byte(0x00), s.Get(0x64), "INT_CONFIG1")
	assert.Equal(t, byte(0x18), s.Get(0x65), "INT_SOURCE0")

	st := dev.State()
	assert.Equal(t, sensor.Accel4g, st.AccelConfig0.Scale())
	assert.InDelta(t, 1.0/8192, st.AccelResolution, 1e-12)
}

func TestConfigureDeviceWithoutInterrupt(t *testing.T) {
	s := sensor.NewSimBus()
	dev, err := sensor.Initialize(s, sensor.Options{})
	require.NoError(t, err)

	c := config.DefaultConfig().Device
	c.DataReadyInterrupt = false
	require.NoError(t, configureDevice(dev, c))
	assert.Equal(t, byte(0x00), s.Get(0x14))
	assert.Equal(t, byte(0x10), s.Get(0x65))
}

func TestConfigureDeviceRejectsBadNames(t *testing.T) {
	dev, err := sensor.Initialize(sensor.NewSimBus(), sensor.Options{})
	require.NoError(t, err)
	c := config.DefaultConfig().Device
	c.GyroScale = "9000dps"
	assert.Error(t, configureDevice(dev, c))
}

type collectSink struct {
	mu      sync.Mutex
	records []acquisition.Record
	full    chan struct{}
	want    int
}

func (s *collectSink) Publish(r acquisition.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if len(s.records) == s.want {
		close(s.full)
	}
	return nil
}

func TestAcquireSimulation(t *testing.T) {
	cfg := simConfig()
	sink := &collectSink{want: 5, full: make(chan struct{})}
	reg := prometheus.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- acquire(ctx, cfg, sink, metrics.New(reg)) }()

	select {
	case <-sink.full:
	case <-time.After(5 * time.Second):
		t.Fatal("no records from simulation")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acquire did not stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, r := range sink.records[:5] {
		assert.Equal(t, uint64(i+1), r.Event.SequenceNo)
		assert.Equal(t, edge.Rising, r.Event.Type)
		assert.Equal(t, uint(cfg.GPIO.Line), r.Event.LineOffset)
		assert.InDelta(t, 25, r.Sample.TemperatureC, 1.5)
		assert.InDelta(t, 1, r.Sample.Accel[2], 0.2)
	}
}

func TestAcquireSIUnits(t *testing.T) {
	cfg := simConfig()
	cfg.Device.Units = "si"
	sink := &collectSink{want: 1, full: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- acquire(ctx, cfg, sink, nil) }()
	select {
	case <-sink.full:
	case <-time.After(5 * time.Second):
		t.Fatal("no records from simulation")
	}
	cancel()
	require.NoError(t, <-done)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	s := sink.records[0].Sample
	assert.Equal(t, sensor.SI, s.Units)
	assert.InDelta(t, sensor.StandardGravity, s.Accel[2], 2)
}

func TestProbeSimulation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, probe(&buf, simConfig()))
	assert.Contains(t, buf.String(), "accel_config0=0x06")
	assert.Contains(t, buf.String(), "filter order")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config", "--print", "--gpio-line", "17"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "line: 17")

	path := filepath.Join(t.TempDir(), "icm", "config.yaml")
	cmd = newRootCmd()
	cmd.SetArgs([]string{"config", "-o", path})
	require.NoError(t, cmd.Execute())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "consumer: imu-data-event")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"config", "-o", path})
	assert.Error(t, cmd.Execute(), "refuses to overwrite")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"config", "-o", path, "-y"})
	assert.NoError(t, cmd.Execute())
}
