// Package valkey provides Valkey/Redis publishing for historian tag samples.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"histlink/config"
	"histlink/logging"
	"histlink/namespace"
)

// TagMessage represents a tag sample stored in Valkey.
type TagMessage struct {
	Namespace string      `json:"namespace"`
	Tag       string      `json:"tag"`
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp"`
}

// WriteRequest represents a write request popped from the write queue.
type WriteRequest struct {
	Tag   string      `json:"tag"`
	Value interface{} `json:"value"`
}

// WriteResponse represents a response to a write request, published on the
// write response channel.
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

// Publisher handles publishing tag samples to a Valkey server.
type Publisher struct {
	config  *config.ValkeyConfig
	ns      *namespace.Builder
	client  *redis.Client
	running bool
	mu      sync.RWMutex

	writeHandler WriteHandler

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPublisher creates a Valkey publisher.
func NewPublisher(cfg *config.ValkeyConfig, ns *namespace.Builder) *Publisher {
	return &Publisher{
		config:   cfg,
		ns:       ns,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// SetWriteHandler sets the callback for handling write-back requests.
func (p *Publisher) SetWriteHandler(handler WriteHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeHandler = handler
}

// Start connects to the Valkey server and, when write-back is enabled,
// begins consuming the write queue.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := &redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if p.config.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to valkey: %w", err)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		client.Close()
		return nil
	}
	p.client = client
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	if p.config.EnableWriteback {
		p.wg.Add(1)
		go p.writebackLoop()
	}

	logging.DebugLog("valkey", "connected to %s", p.config.Address)
	return nil
}

// Stop disconnects from the Valkey server.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running || p.client == nil {
		p.mu.Unlock()
		return
	}
	p.running = false
	client := p.client
	p.client = nil
	close(p.stopChan)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.DebugLog("valkey", "timeout waiting for writeback loop to stop")
	}

	client.Close()
	logging.DebugLog("valkey", "disconnected")
}

// Publish stores a tag sample under its key and optionally announces it on
// the changes channel.
func (p *Publisher) Publish(tag string, value interface{}, timestamp string) bool {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return false
	}

	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	msg := TagMessage{
		Namespace: p.ns.ValkeyFactory(),
		Tag:       tag,
		Value:     value,
		Timestamp: timestamp,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := p.ns.ValkeyTagKey(tag)
	if err := client.Set(ctx, key, payload, p.config.KeyTTL).Err(); err != nil {
		logging.DebugLog("valkey", "SET %s failed: %v", key, err)
		return false
	}

	if p.config.PublishChanges {
		if err := client.Publish(ctx, p.ns.ValkeyChangesChannel(), payload).Err(); err != nil {
			logging.DebugLog("valkey", "PUBLISH failed: %v", err)
		}
	}
	return true
}

// writebackLoop consumes write requests from the write queue.
func (p *Publisher) writebackLoop() {
	defer p.wg.Done()

	queue := p.ns.ValkeyWriteQueue()
	logging.DebugLog("valkey", "writeback loop started on %s", queue)

	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		p.mu.RLock()
		client := p.client
		p.mu.RUnlock()
		if client == nil {
			return
		}

		// Block briefly so the stop channel is checked regularly.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		result, err := client.BLPop(ctx, time.Second, queue).Result()
		cancel()
		if err != nil {
			continue // Timeout or transient error
		}
		if len(result) < 2 {
			continue
		}

		var req WriteRequest
		if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
			logging.DebugLog("valkey", "invalid write request: %v", err)
			continue
		}
		p.handleWrite(&req)
	}
}

func (p *Publisher) handleWrite(req *WriteRequest) {
	p.mu.RLock()
	handler := p.writeHandler
	client := p.client
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
			logging.DebugLog("valkey", "write %s failed: %v", req.Tag, err)
		} else {
			resp.Success = true
			resp.Location = location
			logging.DebugLog("valkey", "write %s = %v ok", req.Tag, req.Value)
		}
	}

	if client == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client.Publish(ctx, p.ns.ValkeyWriteResponseChannel(), payload)
}
