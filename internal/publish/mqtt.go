package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds configuration for the MQTT mirror.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id" json:"clientId"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retained bool   `yaml:"retained" json:"retained"` // Late subscribers get the last fix
}

// MQTTPublisher publishes each position to a single topic.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewMQTT connects to the broker. The client reconnects on its own after
// the initial connection succeeds.
func NewMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("[mqtt] connection lost: %v (reconnecting)", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	log.Printf("[mqtt] connected to %s, publishing on %s", cfg.Broker, cfg.Topic)
	return &MQTTPublisher{client: client, cfg: cfg}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) error {
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish: %w", ctx.Err())
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
