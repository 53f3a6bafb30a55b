package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ericogr/icm42688p-monitor/pkg/sensor"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix  = "ICM42688P"
	EnvConfig  = EnvPrefix + "_CONFIG"
	configName = "config"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server" mapstructure:"server"`
	Username          string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password          string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	ClientID          string `json:"client_id,omitempty" yaml:"client_id,omitempty" mapstructure:"client_id"`
	Topic             string `json:"topic" yaml:"topic" mapstructure:"topic"`
	QoS               byte   `json:"qos" yaml:"qos" mapstructure:"qos"`
	Retain            bool   `json:"retain" yaml:"retain" mapstructure:"retain"`
	Encoding          string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty" mapstructure:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty" mapstructure:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty" mapstructure:"discovery_unique_id"`
}

type OutputConfig struct {
	Type       string      `json:"type" yaml:"type" mapstructure:"type"`
	IntervalMs int         `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty" mapstructure:"interval_ms"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty" mapstructure:"mqtt"`
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus" mapstructure:"bus"`
	Address int    `json:"address" yaml:"address" mapstructure:"address"`
}

// GPIOConfig selects the interrupt line. Chip and Line are used by the
// cdev backend, Pin by the periph backend.
type GPIOConfig struct {
	Backend     string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Chip        string `json:"chip" yaml:"chip" mapstructure:"chip"`
	Line        int    `json:"line" yaml:"line" mapstructure:"line"`
	Pin         string `json:"pin" yaml:"pin" mapstructure:"pin"`
	Consumer    string `json:"consumer" yaml:"consumer" mapstructure:"consumer"`
	MaxBatch    int    `json:"max_batch" yaml:"max_batch" mapstructure:"max_batch"`
	EventBuffer int    `json:"event_buffer" yaml:"event_buffer" mapstructure:"event_buffer"`
}

type DeviceConfig struct {
	AccelScale         string `json:"accel_scale" yaml:"accel_scale" mapstructure:"accel_scale"`
	AccelODR           string `json:"accel_odr" yaml:"accel_odr" mapstructure:"accel_odr"`
	GyroScale          string `json:"gyro_scale" yaml:"gyro_scale" mapstructure:"gyro_scale"`
	GyroODR            string `json:"gyro_odr" yaml:"gyro_odr" mapstructure:"gyro_odr"`
	DataReadyInterrupt bool   `json:"data_ready_interrupt" yaml:"data_ready_interrupt" mapstructure:"data_ready_interrupt"`
	WriteDelayMs       int    `json:"write_delay_ms" yaml:"write_delay_ms" mapstructure:"write_delay_ms"`
	ResetDelayMs       int    `json:"reset_delay_ms" yaml:"reset_delay_ms" mapstructure:"reset_delay_ms"`
	// Units is "native" (g, dps) or "si" (m/s², rad/s).
	Units string `json:"units" yaml:"units" mapstructure:"units"`
}

type Config struct {
	I2C         I2CConfig      `json:"i2c" yaml:"i2c" mapstructure:"i2c"`
	GPIO        GPIOConfig     `json:"gpio" yaml:"gpio" mapstructure:"gpio"`
	Device      DeviceConfig   `json:"device" yaml:"device" mapstructure:"device"`
	Outputs     []OutputConfig `json:"outputs" yaml:"outputs" mapstructure:"outputs"`
	SensorType  string         `json:"sensor_type" yaml:"sensor_type" mapstructure:"sensor_type"`
	SimRateHz   float64        `json:"sim_rate_hz" yaml:"sim_rate_hz" mapstructure:"sim_rate_hz"`
	MetricsAddr string         `json:"metrics_addr" yaml:"metrics_addr" mapstructure:"metrics_addr"`
	Debug       bool           `json:"debug" yaml:"debug" mapstructure:"debug"`
}

func DefaultConfig() Config {
	return Config{
		I2C: I2CConfig{Bus: "1", Address: 0x68},
		GPIO: GPIOConfig{
			Backend:     "cdev",
			Chip:        "/dev/gpiochip0",
			Line:        4,
			Pin:         "GPIO4",
			Consumer:    "imu-data-event",
			MaxBatch:    16,
			EventBuffer: 64,
		},
		Device: DeviceConfig{
			AccelScale:         "4g",
			AccelODR:           "100Hz",
			GyroScale:          "2000dps",
			GyroODR:            "100Hz",
			DataReadyInterrupt: true,
			ResetDelayMs:       1,
			Units:              "native",
		},
		Outputs:    []OutputConfig{{Type: "console"}},
		SensorType: "real",
		SimRateHz:  100,
	}
}

// DefaultMQTT fills the fields a bare `type: mqtt` output leaves empty.
func DefaultMQTT() MQTTConfig {
	return MQTTConfig{
		Server:   "tcp://localhost:1883",
		Topic:    "icm42688p/imu",
		Encoding: "json",
	}
}

// flag name -> config key
var flagKeys = map[string]string{
	"i2c-bus":        "i2c.bus",
	"i2c-address":    "i2c.address",
	"gpio-backend":   "gpio.backend",
	"gpio-chip":      "gpio.chip",
	"gpio-line":      "gpio.line",
	"gpio-pin":       "gpio.pin",
	"gpio-consumer":  "gpio.consumer",
	"max-batch":      "gpio.max_batch",
	"event-buffer":   "gpio.event_buffer",
	"accel-scale":    "device.accel_scale",
	"accel-odr":      "device.accel_odr",
	"gyro-scale":     "device.gyro_scale",
	"gyro-odr":       "device.gyro_odr",
	"write-delay-ms": "device.write_delay_ms",
	"reset-delay-ms": "device.reset_delay_ms",
	"units":          "device.units",
	"sensor-type":    "sensor_type",
	"sim-rate-hz":    "sim_rate_hz",
	"metrics-addr":   "metrics_addr",
	"debug":          "debug",
}

// AddFlags registers the command line flags understood by Load.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "Path to config file (JSON or YAML)")
	fs.String("i2c-bus", d.I2C.Bus, "I2C bus (e.g., '1' -> /dev/i2c-1)")
	fs.String("i2c-address", fmt.Sprintf("0x%02x", d.I2C.Address), "I2C address (decimal or 0x hex)")
	fs.String("gpio-backend", d.GPIO.Backend, "GPIO backend: cdev|periph")
	fs.String("gpio-chip", d.GPIO.Chip, "GPIO chip device (cdev backend)")
	fs.Int("gpio-line", d.GPIO.Line, "GPIO line offset (cdev backend)")
	fs.String("gpio-pin", d.GPIO.Pin, "GPIO pin name (periph backend)")
	fs.String("gpio-consumer", d.GPIO.Consumer, "Consumer label for the line request")
	fs.Int("max-batch", d.GPIO.MaxBatch, "Maximum edge events per read")
	fs.Int("event-buffer", d.GPIO.EventBuffer, "Edge events buffered between reads")
	fs.String("accel-scale", d.Device.AccelScale, "Accelerometer full scale: 16g|8g|4g|2g")
	fs.String("accel-odr", d.Device.AccelODR, "Accelerometer output data rate")
	fs.String("gyro-scale", d.Device.GyroScale, "Gyroscope full scale, e.g. 2000dps")
	fs.String("gyro-odr", d.Device.GyroODR, "Gyroscope output data rate")
	fs.Int("write-delay-ms", d.Device.WriteDelayMs, "Delay after each register write")
	fs.Int("reset-delay-ms", d.Device.ResetDelayMs, "Delay after soft reset")
	fs.String("units", d.Device.Units, "Acceleration and angular rate units: native (g, dps) or si (m/s², rad/s)")
	fs.String("sensor-type", d.SensorType, "sensor type: real|simulation")
	fs.Float64("sim-rate-hz", d.SimRateHz, "Edge rate in simulation mode")
	fs.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.Bool("debug", d.Debug, "Enable debug logging")
	fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	fs.String("output-intervals", "", "Comma-separated minimum ms between published records e.g. mqtt=1000 (mqtt only, console prints every record)")
	fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.String("mqtt-user", "", "MQTT username")
	fs.String("mqtt-pass", "", "MQTT password")
	fs.String("mqtt-client-id", "", "MQTT client id")
	fs.String("mqtt-topic", "", "MQTT state topic")
	fs.String("mqtt-encoding", "", "MQTT payload encoding: json|cbor")
}

// Load builds the configuration from defaults, the config file, ICM42688P_*
// environment variables and flags, in increasing priority. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	d := DefaultConfig()
	setDefaults(v, d)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return d, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, flagString(fs, "config")); err != nil {
		return d, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return d, fmt.Errorf("parse config: %w", err)
	}
	if fs != nil {
		if err := applyOutputFlags(&cfg, fs); err != nil {
			return cfg, err
		}
	}
	cfg.fillMQTTDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("i2c.bus", d.I2C.Bus)
	v.SetDefault("i2c.address", d.I2C.Address)
	v.SetDefault("gpio.backend", d.GPIO.Backend)
	v.SetDefault("gpio.chip", d.GPIO.Chip)
	v.SetDefault("gpio.line", d.GPIO.Line)
	v.SetDefault("gpio.pin", d.GPIO.Pin)
	v.SetDefault("gpio.consumer", d.GPIO.Consumer)
	v.SetDefault("gpio.max_batch", d.GPIO.MaxBatch)
	v.SetDefault("gpio.event_buffer", d.GPIO.EventBuffer)
	v.SetDefault("device.accel_scale", d.Device.AccelScale)
	v.SetDefault("device.accel_odr", d.Device.AccelODR)
	v.SetDefault("device.gyro_scale", d.Device.GyroScale)
	v.SetDefault("device.gyro_odr", d.Device.GyroODR)
	v.SetDefault("device.data_ready_interrupt", d.Device.DataReadyInterrupt)
	v.SetDefault("device.write_delay_ms", d.Device.WriteDelayMs)
	v.SetDefault("device.reset_delay_ms", d.Device.ResetDelayMs)
	v.SetDefault("device.units", d.Device.Units)
	v.SetDefault("outputs", []map[string]any{{"type": "console"}})
	v.SetDefault("sensor_type", d.SensorType)
	v.SetDefault("sim_rate_hz", d.SimRateHz)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("debug", d.Debug)
}

// readConfigFile reads path, else $ICM42688P_CONFIG, else searches the
// standard locations. A missing file is only an error when it was named.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName(configName)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "icm42688p"))
	}
	v.AddConfigPath("/etc/icm42688p")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func flagString(fs *pflag.FlagSet, name string) string {
	if fs == nil {
		return ""
	}
	s, err := fs.GetString(name)
	if err != nil {
		return ""
	}
	return s
}

func flagChanged(fs *pflag.FlagSet, name string) (string, bool) {
	f := fs.Lookup(name)
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}

func applyOutputFlags(cfg *Config, fs *pflag.FlagSet) error {
	if s, ok := flagChanged(fs, "outputs"); ok {
		parts := parseCSV(s)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if s, ok := flagChanged(fs, "output-intervals"); ok {
		for _, p := range parseCSV(s) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("output-intervals: malformed entry %q", p)
			}
			ms, err := parseIntOrHex(strings.TrimSpace(kv[1]))
			if err != nil {
				return fmt.Errorf("output-intervals %q: %w", p, err)
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = ms
				}
			}
		}
	}

	mqttFlags := map[string]func(*MQTTConfig, string){
		"mqtt-server":    func(m *MQTTConfig, s string) { m.Server = s },
		"mqtt-user":      func(m *MQTTConfig, s string) { m.Username = s },
		"mqtt-pass":      func(m *MQTTConfig, s string) { m.Password = s },
		"mqtt-client-id": func(m *MQTTConfig, s string) { m.ClientID = s },
		"mqtt-topic":     func(m *MQTTConfig, s string) { m.Topic = s },
		"mqtt-encoding":  func(m *MQTTConfig, s string) { m.Encoding = s },
	}
	var set []func(*MQTTConfig)
	for name, apply := range mqttFlags {
		if s, ok := flagChanged(fs, name); ok {
			set = append(set, func(m *MQTTConfig) { apply(m, s) })
		}
	}
	if len(set) == 0 {
		return nil
	}
	// Apply MQTT flags to all mqtt outputs; if none exist, create one.
	applied := false
	for i := range cfg.Outputs {
		if cfg.Outputs[i].Type != "mqtt" {
			continue
		}
		if cfg.Outputs[i].MQTT == nil {
			cfg.Outputs[i].MQTT = &MQTTConfig{}
		}
		for _, f := range set {
			f(cfg.Outputs[i].MQTT)
		}
		applied = true
	}
	if !applied {
		m := &MQTTConfig{}
		for _, f := range set {
			f(m)
		}
		cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: m})
	}
	return nil
}

func (c *Config) fillMQTTDefaults() {
	d := DefaultMQTT()
	for i := range c.Outputs {
		if c.Outputs[i].Type != "mqtt" {
			continue
		}
		m := c.Outputs[i].MQTT
		if m == nil {
			m = &MQTTConfig{}
			c.Outputs[i].MQTT = m
		}
		if m.Server == "" {
			m.Server = d.Server
		}
		if m.Topic == "" {
			m.Topic = d.Topic
		}
		if m.Encoding == "" {
			m.Encoding = d.Encoding
		}
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.I2C.Address < 0 || c.I2C.Address > 0x7F {
		return fmt.Errorf("i2c.address 0x%X out of range", c.I2C.Address)
	}
	switch c.GPIO.Backend {
	case "cdev", "periph":
	default:
		return fmt.Errorf("gpio.backend %q: want cdev or periph", c.GPIO.Backend)
	}
	if c.GPIO.Line < 0 {
		return fmt.Errorf("gpio.line %d must not be negative", c.GPIO.Line)
	}
	if c.GPIO.MaxBatch < 1 {
		return fmt.Errorf("gpio.max_batch %d must be positive", c.GPIO.MaxBatch)
	}
	if c.GPIO.EventBuffer < 1 {
		return fmt.Errorf("gpio.event_buffer %d must be positive", c.GPIO.EventBuffer)
	}
	if _, err := sensor.ParseAccelScale(c.Device.AccelScale); err != nil {
		return fmt.Errorf("device.accel_scale: %w", err)
	}
	if _, err := sensor.ParseODR(c.Device.AccelODR); err != nil {
		return fmt.Errorf("device.accel_odr: %w", err)
	}
	if _, err := sensor.ParseGyroScale(c.Device.GyroScale); err != nil {
		return fmt.Errorf("device.gyro_scale: %w", err)
	}
	if _, err := sensor.ParseODR(c.Device.GyroODR); err != nil {
		return fmt.Errorf("device.gyro_odr: %w", err)
	}
	if _, err := sensor.ParseUnits(c.Device.Units); err != nil {
		return fmt.Errorf("device.units: %w", err)
	}
	if c.Device.WriteDelayMs < 0 || c.Device.ResetDelayMs < 0 {
		return errors.New("device delays must not be negative")
	}
	switch c.SensorType {
	case "real":
	case "simulation":
		if c.SimRateHz <= 0 {
			return fmt.Errorf("sim_rate_hz %g must be positive", c.SimRateHz)
		}
	default:
		return fmt.Errorf("sensor_type %q: want real or simulation", c.SensorType)
	}
	if len(c.Outputs) == 0 {
		return errors.New("no outputs configured")
	}
	for i, o := range c.Outputs {
		if o.IntervalMs < 0 {
			return fmt.Errorf("outputs[%d].interval_ms must not be negative", i)
		}
		switch o.Type {
		case "console":
			if o.IntervalMs != 0 {
				return fmt.Errorf("outputs[%d]: console prints every record, interval_ms not supported", i)
			}
		case "mqtt":
			if o.MQTT == nil {
				return fmt.Errorf("outputs[%d]: mqtt section missing", i)
			}
			if e := o.MQTT.Encoding; e != "json" && e != "cbor" {
				return fmt.Errorf("outputs[%d].mqtt.encoding %q: want json or cbor", i, e)
			}
			if o.MQTT.QoS > 2 {
				return fmt.Errorf("outputs[%d].mqtt.qos %d out of range", i, o.MQTT.QoS)
			}
		default:
			return fmt.Errorf("outputs[%d]: unknown type %q", i, o.Type)
		}
	}
	return nil
}

// Template renders cfg as a YAML config file.
func Template(cfg Config) ([]byte, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return b, nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
