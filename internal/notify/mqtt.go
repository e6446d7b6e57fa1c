// Package notify pushes commands to kiosks over MQTT.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
)

const (
	commandQoS        = 1
	disconnectQuiesce = 250
	publishTimeout    = 5 * time.Second
)

// CommandTopic is the topic a kiosk subscribes to for commands.
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("kiosk/%s/commands", deviceID)
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Info().Msg("connected to MQTT broker")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection lost")
}

// Publisher sends JSON commands to kiosk command topics.
type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// Connect dials the broker. The client reconnects on its own after a lost connection.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT publisher initialized")
	return NewPublisher(client), nil
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client, timeout: publishTimeout}
}

// PublishCommand marshals cmd and publishes it to the device's command topic.
func (p *Publisher) PublishCommand(ctx context.Context, deviceID string, cmd any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	topic := CommandTopic(deviceID)
	token := p.client.Publish(topic, commandQoS, false, payload)

	wait := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Msg("command published")
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
		log.Info().Msg("MQTT publisher disconnected")
	}
}
