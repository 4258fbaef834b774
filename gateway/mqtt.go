package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	commandSuffix  = "/command"
	responseSuffix = "/response"
	connectTimeout = 30 * time.Second
)

// MQTTConfig for the MQTT command gateway
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string // base topic; commands arrive on <Topic>/command
	Username string
	Password string
	Timeout  time.Duration // per request
}

// MQTT answers commands published to <Topic>/command on <Topic>/response.
// The payload is either a JSON Request or a bare command name.
type MQTT struct {
	config  MQTTConfig
	sub     Submitter
	client  mqtt.Client
	publish func(topic string, payload []byte) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewMQTT(sub Submitter, config MQTTConfig) *MQTT {
	ctx, cancel := context.WithCancel(context.Background())
	return &MQTT{
		config: config,
		sub:    sub,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects to the broker. Subscriptions are renewed on every
// reconnect.
func (m *MQTT) Start() error {
	if m.config.Broker == "" || m.config.Topic == "" {
		return fmt.Errorf("mqtt: broker and topic required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.config.Broker)
	opts.SetClientID(m.config.ClientID)
	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
		opts.SetPassword(m.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		topic := m.config.Topic + commandSuffix
		token := c.Subscribe(topic, 1, m.onMessage)
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", topic, token.Error())
			return
		}
		log.Printf("mqtt: connected to %s, listening on %s", m.config.Broker, topic)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})

	m.client = mqtt.NewClient(opts)
	m.publish = func(topic string, payload []byte) error {
		token := m.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("publish %s: timeout", topic)
		}
		return token.Error()
	}

	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect failed: %w", err)
	}
	return nil
}

// Stop drops messages that arrive from now on and disconnects once the
// in-flight requests have finished.
func (m *MQTT) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	if m.client != nil && m.client.IsConnected() {
		topic := m.config.Topic + commandSuffix
		token := m.client.Unsubscribe(topic)
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			log.Printf("mqtt: unsubscribe %s: %v", topic, token.Error())
		}
	}

	m.cancel()
	m.wg.Wait()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(1000)
	}
	log.Println("mqtt: stopped")
}

// onMessage must not block the paho router, so each request is served on
// its own goroutine. The broker keeps them in order.
func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	req, err := parseRequest(msg.Payload())
	if err != nil {
		log.Printf("mqtt: %s: %v", msg.Topic(), err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		log.Printf("mqtt: %s: dropping %q, gateway stopped", msg.Topic(), req.Command)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.serve(req)
	}()
}

func (m *MQTT) serve(req Request) {
	reply, err := execute(m.ctx, m.sub, m.config.Timeout, req)
	if err != nil {
		log.Printf("mqtt: %s: %v", req.Command, err)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.Printf("mqtt: marshal reply: %v", err)
		return
	}
	if err := m.publish(m.config.Topic+responseSuffix, data); err != nil {
		log.Printf("mqtt: %v", err)
	}
}

func parseRequest(payload []byte) (Request, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}
	if payload[0] != '{' {
		return Request{Command: string(payload)}, nil
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
