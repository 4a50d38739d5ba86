package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/egregors/plantdash/log"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTT publishes dashboard events as JSON to an MQTT broker.
type MQTT struct {
	client mqtt.Client
	prefix string
}

func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.BrokerURL)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(connectTimeout)
	co.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info.Printf("connected to mqtt broker %s", opts.BrokerURL)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Erro.Printf("mqtt connection lost: %s", err.Error())
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("can't connect to %s: timeout", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("can't connect to %s: %w", opts.BrokerURL, err)
	}

	return newMQTT(client, opts.TopicPrefix), nil
}

func newMQTT(client mqtt.Client, prefix string) *MQTT {
	return &MQTT{client: client, prefix: prefix}
}

func (m *MQTT) Publish(ctx context.Context, sessionID string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("can't marshal event: %w", err)
	}

	topic := Topic(m.prefix, sessionID)
	token := m.client.Publish(topic, 0, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("can't publish to %s: %w", topic, err)
	}

	log.Debg.Printf("published %s event to %s", e.Kind, topic)

	return nil
}

func (m *MQTT) Close() {
	m.client.Disconnect(disconnectQuiesce)
}
