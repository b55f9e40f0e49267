package bus

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vending-backend/config"
)

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is the message-bus surface the pipelines depend on. Tests swap in a
// fake; production uses the paho-backed client from Connect.
type Client interface {
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	Connected() bool
	Close()
}

// QoS 1: the actuator firmware treats repeated ON/OFF as idempotent, so
// at-least-once delivery is the right trade.
const qosAtLeastOnce byte = 1

type pahoClient struct {
	client mqtt.Client
}

// Connect establishes the broker connection and blocks until it is up or the
// configured timeout elapses.
func Connect(cfg *config.MQTTConfig) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(time.Second)

	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("Reconnecting to MQTT broker...")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(time.Duration(cfg.ConnectTimeout) * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.BrokerURL, err)
	}

	return &pahoClient{client: client}, nil
}

func (c *pahoClient) Subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, qosAtLeastOnce, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Connected() bool {
	return c.client.IsConnected()
}

func (c *pahoClient) Close() {
	c.client.Disconnect(250)
}
