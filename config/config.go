// Package config handles configuration persistence for the histlink gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"histlink/piweb"
)

// HistorianConfig is an alias for the historian connection settings defined
// in piweb.
type HistorianConfig = piweb.Config

// Config holds the complete gateway configuration.
type Config struct {
	Namespace  string          `yaml:"namespace"` // Required: instance namespace for topic/key isolation
	Historian  HistorianConfig `yaml:"historian"`
	DataServer string          `yaml:"dataserver"` // Catalog name on the historian
	Tags       []TagConfig     `yaml:"tags"`
	PollRate   time.Duration   `yaml:"poll_rate"`
	Web        WebConfig       `yaml:"web"`
	MQTT       MQTTConfig      `yaml:"mqtt,omitempty"`
	Valkey     ValkeyConfig    `yaml:"valkey,omitempty"`
	Kafka      KafkaConfig     `yaml:"kafka,omitempty"`
}

// TagConfig identifies one historian tag to poll. WebID may be supplied to
// skip resolution at startup; otherwise Name is resolved against the
// configured data server.
type TagConfig struct {
	Name          string `yaml:"name"`
	WebID         string `yaml:"web_id,omitempty"`
	IgnoreChanges bool   `yaml:"ignore_changes,omitempty"` // Poll but never publish on change
}

// WebConfig holds the local REST API server configuration.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig holds MQTT sink configuration.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	ClientID string `yaml:"client_id"`
	Selector string `yaml:"selector,omitempty"` // Optional sub-namespace
	UseTLS   bool   `yaml:"use_tls,omitempty"`

	// Write-back settings
	EnableWriteback bool `yaml:"enable_writeback,omitempty"` // Subscribe for write requests
}

// ValkeyConfig holds Valkey/Redis sink configuration.
type ValkeyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"` // host:port format
	Password        string        `yaml:"password,omitempty"`
	Database        int           `yaml:"database"`           // Redis DB number (default 0)
	Selector        string        `yaml:"selector,omitempty"` // Optional sub-namespace
	UseTLS          bool          `yaml:"use_tls,omitempty"`
	KeyTTL          time.Duration `yaml:"key_ttl,omitempty"`          // TTL for keys (0 = no expiry)
	PublishChanges  bool          `yaml:"publish_changes,omitempty"`  // Publish to Pub/Sub on changes
	EnableWriteback bool          `yaml:"enable_writeback,omitempty"` // Enable write-back queue
}

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	UseTLS        bool          `yaml:"use_tls,omitempty"`
	TLSSkipVerify bool          `yaml:"tls_skip_verify,omitempty"`
	SASLMechanism string        `yaml:"sasl_mechanism,omitempty"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	RequiredAcks  int           `yaml:"required_acks,omitempty"` // -1=all, 0=none, 1=leader
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	RetryBackoff  time.Duration `yaml:"retry_backoff,omitempty"`
	Selector      string        `yaml:"selector,omitempty"` // Optional sub-namespace
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Tags:     []TagConfig{},
		PollRate: time.Second,
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
	}
}

// DefaultPath returns the default configuration file path (~/.histlink/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".histlink", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults without error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating the directory if
// needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FindTag returns the tag config with the given name, or nil if not found.
func (c *Config) FindTag(name string) *TagConfig {
	for i := range c.Tags {
		if c.Tags[i].Name == name {
			return &c.Tags[i]
		}
	}
	return nil
}

// AddTag adds a new tag configuration.
func (c *Config) AddTag(tag TagConfig) {
	c.Tags = append(c.Tags, tag)
}

// RemoveTag removes a tag config by name.
func (c *Config) RemoveTag(name string) bool {
	for i, t := range c.Tags {
		if t.Name == name {
			c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateTag updates an existing tag configuration.
func (c *Config) UpdateTag(name string, updated TagConfig) bool {
	for i, t := range c.Tags {
		if t.Name == name {
			c.Tags[i] = updated
			return true
		}
	}
	return false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !IsValidNamespace(c.Namespace) {
		return fmt.Errorf("invalid namespace: must contain only alphanumeric characters, hyphens, underscores, and dots")
	}
	if c.Historian.Host == "" {
		return fmt.Errorf("historian host is required")
	}
	if c.DataServer == "" {
		return fmt.Errorf("dataserver is required")
	}
	return nil
}

// IsValidNamespace returns true if the namespace is valid.
// Valid namespaces contain only alphanumeric characters, hyphens,
// underscores, and dots.
func IsValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, r := range ns {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}
