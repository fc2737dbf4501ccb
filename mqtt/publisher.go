// Package mqtt provides MQTT publishing for historian tag samples.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"histlink/config"
	"histlink/logging"
	"histlink/namespace"
)

// TagMessage is the JSON structure published for a tag sample.
type TagMessage struct {
	Namespace string      `json:"namespace"`
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp"`
}

// WriteRequest is the JSON structure for incoming write requests.
type WriteRequest struct {
	Tag   string      `json:"tag"`
	Value interface{} `json:"value"`
}

// WriteResponse is the JSON structure for write responses.
type WriteResponse struct {
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	Success   bool        `json:"success"`
	Location  string      `json:"location,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// WriteHandler is a callback for handling write requests.
// It returns the historian location reference, or an error.
type WriteHandler func(tag string, value interface{}) (string, error)

// Publisher handles the MQTT connection and publishes tag samples to a
// single broker.
type Publisher struct {
	config  *config.MQTTConfig
	ns      *namespace.Builder
	client  pahomqtt.Client
	running bool
	mu      sync.RWMutex

	// Track last published values to avoid republishing unchanged samples
	lastValues map[string]interface{}
	lastMu     sync.RWMutex

	writeHandler WriteHandler
}

// NewPublisher creates an MQTT publisher for a single broker.
func NewPublisher(cfg *config.MQTTConfig, ns *namespace.Builder) *Publisher {
	return &Publisher{
		config:     cfg,
		ns:         ns,
		lastValues: make(map[string]interface{}),
	}
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// SetWriteHandler sets the callback for handling write requests.
func (p *Publisher) SetWriteHandler(handler WriteHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeHandler = handler
}

// Address returns the broker address string.
func (p *Publisher) Address() string {
	if p.config.UseTLS {
		return fmt.Sprintf("ssl://%s:%d", p.config.Broker, p.config.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
}

// Start connects to the MQTT broker and, when write-back is enabled,
// subscribes to the write topic.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.Address())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	logging.DebugLog("mqtt", "connecting to broker %s", p.Address())

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		return token.Error()
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.running = true
	p.mu.Unlock()

	// Force a republish of everything after reconnects
	p.lastMu.Lock()
	p.lastValues = make(map[string]interface{})
	p.lastMu.Unlock()

	if p.config.EnableWriteback {
		p.subscribeWriteTopic()
	}

	logging.DebugLog("mqtt", "connected to %s", p.Address())
	return nil
}

// Stop disconnects from the MQTT broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running || p.client == nil {
		p.mu.Unlock()
		return
	}
	p.running = false
	client := p.client
	p.client = nil
	p.mu.Unlock()

	// Disconnect outside the lock to prevent blocking
	client.Disconnect(500)
	logging.DebugLog("mqtt", "disconnected")
}

// Publish sends a tag sample to MQTT if it has changed since the last
// publish. Returns true when a message was sent.
func (p *Publisher) Publish(tag string, value interface{}, timestamp string) bool {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return false
	}

	p.lastMu.RLock()
	lastValue, exists := p.lastValues[tag]
	p.lastMu.RUnlock()

	if exists && fmt.Sprintf("%v", lastValue) == fmt.Sprintf("%v", value) {
		return false
	}

	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	msg := TagMessage{
		Namespace: p.ns.MQTTBase(),
		Tag:       tag,
		Value:     value,
		Timestamp: timestamp,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	topic := p.ns.MQTTTagTopic(tag)
	token := client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(2 * time.Second) {
		logging.DebugLog("mqtt", "publish timeout on %s", topic)
		return false
	}
	if token.Error() != nil {
		logging.DebugLog("mqtt", "publish error on %s: %v", topic, token.Error())
		return false
	}

	p.lastMu.Lock()
	p.lastValues[tag] = value
	p.lastMu.Unlock()
	return true
}

// subscribeWriteTopic subscribes to the write topic and routes incoming
// requests to the write handler.
func (p *Publisher) subscribeWriteTopic() {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return
	}

	topic := p.ns.MQTTWriteTopic()
	token := client.Subscribe(topic, 1, p.handleWriteMessage)
	if !token.WaitTimeout(5 * time.Second) || token.Error() != nil {
		logging.DebugLog("mqtt", "subscribe to %s failed: %v", topic, token.Error())
		return
	}
	logging.DebugLog("mqtt", "subscribed to %s", topic)
}

func (p *Publisher) handleWriteMessage(client pahomqtt.Client, msg pahomqtt.Message) {
	var req WriteRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		logging.DebugLog("mqtt", "invalid write request on %s: %v", msg.Topic(), err)
		return
	}

	p.mu.RLock()
	handler := p.writeHandler
	p.mu.RUnlock()

	resp := WriteResponse{
		Tag:       req.Tag,
		Value:     req.Value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if handler == nil {
		resp.Error = "no write handler configured"
	} else {
		location, err := handler(req.Tag, req.Value)
		if err != nil {
			resp.Error = err.Error()
			logging.DebugLog("mqtt", "write %s failed: %v", req.Tag, err)
		} else {
			resp.Success = true
			resp.Location = location
			logging.DebugLog("mqtt", "write %s = %v ok", req.Tag, req.Value)
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	client.Publish(p.ns.MQTTWriteResponseTopic(), 1, false, payload)
}
