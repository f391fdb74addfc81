package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"water_heater/internal/config"
	"water_heater/internal/logger"
)

var errMQTTTimeout = errors.New("mqtt: timed out")

type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher mirrors telemetry as retained JSON on <prefix>/telemetry.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	qos     byte
	timeout time.Duration
	log     *logger.Logger
}

// NewMQTTPublisher connects to cfg.Broker. The client reconnects on its own
// after the first successful connect.
func NewMQTTPublisher(cfg config.MQTTConfig, log *logger.Logger) (*MQTTPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnw("mqtt_connection_lost", "broker", cfg.Broker, "err", err)
		})
	p := newMQTTPublisher(mqtt.NewClient(opts), cfg, log)
	if err := p.wait(context.Background(), p.client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	log.Infow("mqtt_connected", "broker", cfg.Broker, "topic", p.topic)
	return p, nil
}

func newMQTTPublisher(c mqttClient, cfg config.MQTTConfig, log *logger.Logger) *MQTTPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &MQTTPublisher{
		client:  c,
		topic:   strings.TrimSuffix(cfg.TopicPrefix, "/") + "/telemetry",
		qos:     byte(cfg.QoS),
		timeout: cfg.Timeout,
		log:     log,
	}
}

func (p *MQTTPublisher) Publish(ctx context.Context, t Telemetry) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	if err := p.wait(ctx, p.client.Publish(p.topic, p.qos, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

func (p *MQTTPublisher) wait(ctx context.Context, tok mqtt.Token) error {
	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return errMQTTTimeout
	}
}
