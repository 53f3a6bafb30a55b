package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/icm42688p-monitor/pkg/acquisition"
	"github.com/ericogr/icm42688p-monitor/pkg/config"
	"github.com/ericogr/icm42688p-monitor/pkg/output"
	"github.com/ericogr/icm42688p-monitor/pkg/sensor"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	clientIDPrefix = "icm42688p-"
	disconnectMs   = 250
	publishTimeout = 5 * time.Second
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCelsius            = "°C"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
	valueTemplateTemp      = "{{ value_json.temperature_c }}"
)

// payload is the record as published on the state topic. Only the axis
// fields matching the sample units are set.
type payload struct {
	Offset       uint      `json:"offset" cbor:"offset"`
	Edge         string    `json:"edge" cbor:"edge"`
	Seq          uint64    `json:"seq" cbor:"seq"`
	TimestampNs  uint64    `json:"timestamp_ns" cbor:"timestamp_ns"`
	TemperatureC float64   `json:"temperature_c" cbor:"temperature_c"`
	AccelG       []float64 `json:"accel_g,omitempty" cbor:"accel_g,omitempty"`
	GyroDPS      []float64 `json:"gyro_dps,omitempty" cbor:"gyro_dps,omitempty"`
	AccelMPS2    []float64 `json:"accel_mps2,omitempty" cbor:"accel_mps2,omitempty"`
	GyroRads     []float64 `json:"gyro_rads,omitempty" cbor:"gyro_rads,omitempty"`
}

func newPayload(r acquisition.Record) payload {
	p := payload{
		Offset:       r.Event.LineOffset,
		Edge:         r.Event.Type.String(),
		Seq:          r.Event.SequenceNo,
		TimestampNs:  r.Event.TimestampNs,
		TemperatureC: r.Sample.TemperatureC,
	}
	accel, gyro := r.Sample.Accel[:], r.Sample.Gyro[:]
	if r.Sample.Units == sensor.SI {
		p.AccelMPS2, p.GyroRads = accel, gyro
	} else {
		p.AccelG, p.GyroDPS = accel, gyro
	}
	return p
}

type MQTTOutput struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	marshal func(any) ([]byte, error)
	log     log.FieldLogger

	pending sync.WaitGroup
}

// NewMQTT connects to the broker and, when a discovery topic is set,
// announces the temperature sensor to Home Assistant.
func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(clientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Server, token.Error())
	}
	cfg.ClientID = clientID
	m, err := newWithClient(client, cfg)
	if err != nil {
		client.Disconnect(disconnectMs)
		return nil, err
	}
	return m, nil
}

func newWithClient(client mqtt.Client, cfg config.MQTTConfig) (*MQTTOutput, error) {
	m := &MQTTOutput{client: client, topic: cfg.Topic, qos: cfg.QoS, retain: cfg.Retain, log: log.WithField("topic", cfg.Topic)}
	switch cfg.Encoding {
	case "", "json":
		m.marshal = json.Marshal
	case "cbor":
		m.marshal = cbor.Marshal
	default:
		return nil, fmt.Errorf("mqtt encoding %q not supported", cfg.Encoding)
	}

	if cfg.DiscoveryTopic != "" {
		if cfg.Encoding == "cbor" {
			log.WithField("topic", cfg.DiscoveryTopic).Warn("mqtt discovery skipped: state payload is cbor")
		} else if err := m.publishDiscovery(cfg); err != nil {
			log.WithError(err).Error("mqtt discovery publish")
		}
	}
	return m, nil
}

// Publish hands the record to the client without waiting for the broker.
// Delivery failures are logged once the token completes.
func (m *MQTTOutput) Publish(r acquisition.Record) error {
	b, err := m.marshal(newPayload(r))
	if err != nil {
		return fmt.Errorf("encode record #%d: %w", r.Event.SequenceNo, err)
	}
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	t := m.client.Publish(m.topic, m.qos, m.retain, b)
	seq := r.Event.SequenceNo
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if err := wait(t); err != nil {
			m.log.WithError(err).WithField("seq", seq).Warn("mqtt publish")
		}
	}()
	return nil
}

// Close waits for outstanding publishes, then disconnects.
func (m *MQTTOutput) Close() error {
	m.pending.Wait()
	if m.client != nil {
		m.client.Disconnect(disconnectMs)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	return wait(m.client.Publish(topic, m.qos, retained, payload))
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish: no ack after %s", publishTimeout)
	}
	return t.Error()
}

func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("ICM-42688-P %s temperature", cfg.ClientID)
}

func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	if cfg.ClientID == "" {
		return ""
	}
	return cfg.ClientID + "_temperature"
}

func discoveryPayload(name, stateTopic, uniqueID string) map[string]any {
	p := map[string]any{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitCelsius,
		keyDeviceClass:         deviceClassTemperature,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateTemp,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		p[keyUniqueID] = uniqueID
	}
	return p
}

func (m *MQTTOutput) publishDiscovery(cfg config.MQTTConfig) error {
	b, err := json.Marshal(discoveryPayload(discoveryName(cfg), cfg.Topic, discoveryUniqueID(cfg)))
	if err != nil {
		return err
	}
	return m.PublishRaw(cfg.DiscoveryTopic, b, true)
}
