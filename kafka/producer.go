// Package kafka provides Kafka production of historian tag samples.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"histlink/config"
	"histlink/logging"
	"histlink/namespace"
)

// SASLMechanism represents the SASL authentication mechanism.
type SASLMechanism string

const (
	SASLNone        SASLMechanism = ""
	SASLPlain       SASLMechanism = "PLAIN"
	SASLSCRAMSHA256 SASLMechanism = "SCRAM-SHA-256"
	SASLSCRAMSHA512 SASLMechanism = "SCRAM-SHA-512"
)

// ConnectionStatus represents the state of the Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// TagMessage is the JSON structure produced for a tag sample. The tag name
// doubles as the message key for partitioning.
type TagMessage struct {
	Namespace string      `json:"namespace"`
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp"`
}

// Producer publishes historian tag samples to a Kafka cluster.
type Producer struct {
	config  *config.KafkaConfig
	ns      *namespace.Builder
	writers map[string]*kafka.Writer // topic -> writer
	status  ConnectionStatus
	lastErr error
	mu      sync.RWMutex

	// Stats
	messagesSent  int64
	messagesError int64
	lastSendTime  time.Time
}

// NewProducer creates a Kafka producer.
func NewProducer(cfg *config.KafkaConfig, ns *namespace.Builder) *Producer {
	return &Producer{
		config:  cfg,
		ns:      ns,
		writers: make(map[string]*kafka.Writer),
		status:  StatusDisconnected,
	}
}

// GetStatus returns the current connection status.
func (p *Producer) GetStatus() ConnectionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// GetError returns the last error.
func (p *Producer) GetError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// GetStats returns producer statistics.
func (p *Producer) GetStats() (sent, errors int64, lastSend time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.messagesSent, p.messagesError, p.lastSendTime
}

// Connect verifies connectivity to the cluster by dialing the first broker.
func (p *Producer) Connect() error {
	p.mu.Lock()
	p.status = StatusConnecting
	p.lastErr = nil
	brokers := p.config.Brokers
	p.mu.Unlock()

	if len(brokers) == 0 {
		err := fmt.Errorf("no brokers configured")
		p.mu.Lock()
		p.status = StatusError
		p.lastErr = err
		p.mu.Unlock()
		return err
	}

	logging.DebugLog("kafka", "connecting to brokers %v", brokers)

	dialer, err := p.createDialer()
	if err != nil {
		p.mu.Lock()
		p.status = StatusError
		p.lastErr = err
		p.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		p.mu.Lock()
		p.status = StatusError
		p.lastErr = fmt.Errorf("failed to connect: %w", err)
		p.mu.Unlock()
		logging.DebugLog("kafka", "connect FAILED: %v", err)
		return fmt.Errorf("failed to connect: %w", err)
	}
	conn.Close()

	p.mu.Lock()
	p.status = StatusConnected
	p.mu.Unlock()

	logging.DebugLog("kafka", "connected")
	return nil
}

// Disconnect closes all writers.
func (p *Producer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, writer := range p.writers {
		writer.Close()
		delete(p.writers, topic)
	}

	p.status = StatusDisconnected
	p.lastErr = nil
	logging.DebugLog("kafka", "disconnected")
}

// Publish produces one tag sample to the namespace tag topic. The call is
// synchronous and blocks until the message is acknowledged.
func (p *Producer) Publish(ctx context.Context, tag string, value interface{}, timestamp string) error {
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	msg := TagMessage{
		Namespace: p.ns.KafkaTagTopic(),
		Tag:       tag,
		Value:     value,
		Timestamp: timestamp,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	return p.Produce(ctx, p.ns.KafkaTagTopic(), []byte(tag), payload)
}

// Produce sends a message to the specified topic.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	writer, err := p.getWriter(topic)
	if err != nil {
		return err
	}

	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		p.mu.Lock()
		p.messagesError++
		p.lastErr = err
		p.mu.Unlock()
		logging.DebugLog("kafka", "produce to %s FAILED: %v", topic, err)
		return fmt.Errorf("kafka produce failed: %w", err)
	}

	p.mu.Lock()
	p.messagesSent++
	p.lastSendTime = time.Now()
	p.lastErr = nil
	p.mu.Unlock()
	return nil
}

// getWriter returns or creates a writer for the given topic.
func (p *Producer) getWriter(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusConnected {
		return nil, fmt.Errorf("kafka cluster not connected")
	}

	if writer, exists := p.writers[topic]; exists {
		return writer, nil
	}

	transport, err := p.createTransport()
	if err != nil {
		return nil, err
	}

	maxAttempts := p.config.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := p.config.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	writer := &kafka.Writer{
		Addr:      kafka.TCP(p.config.Brokers...),
		Topic:     topic,
		Balancer:  &kafka.LeastBytes{},
		Transport: transport,

		// Synchronous for delivery guarantee
		RequiredAcks:    kafka.RequiredAcks(p.config.RequiredAcks),
		Async:           false,
		MaxAttempts:     maxAttempts,
		WriteBackoffMax: backoff,

		// Batching settings
		BatchSize:    100,
		BatchBytes:   1048576,
		BatchTimeout: 10 * time.Millisecond,

		AllowAutoTopicCreation: true,
	}

	p.writers[topic] = writer
	logging.DebugLog("kafka", "created writer for topic %q", topic)
	return writer, nil
}

// createSASL builds the SASL mechanism from config, or nil when disabled.
func (p *Producer) createSASL() (sasl.Mechanism, error) {
	switch SASLMechanism(p.config.SASLMechanism) {
	case SASLNone:
		return nil, nil
	case SASLPlain:
		return plain.Mechanism{Username: p.config.Username, Password: p.config.Password}, nil
	case SASLSCRAMSHA256:
		return scram.Mechanism(scram.SHA256, p.config.Username, p.config.Password)
	case SASLSCRAMSHA512:
		return scram.Mechanism(scram.SHA512, p.config.Username, p.config.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", p.config.SASLMechanism)
	}
}

func (p *Producer) tlsConfig() *tls.Config {
	if !p.config.UseTLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: p.config.TLSSkipVerify}
}

func (p *Producer) createDialer() (*kafka.Dialer, error) {
	mechanism, err := p.createSASL()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           p.tlsConfig(),
		SASLMechanism: mechanism,
	}, nil
}

func (p *Producer) createTransport() (*kafka.Transport, error) {
	mechanism, err := p.createSASL()
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		Dial: (&net.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		}).DialContext,
		TLS:  p.tlsConfig(),
		SASL: mechanism,
	}, nil
}
