// Package namespace provides utilities for constructing topic and key paths
// with consistent namespace prefixing across all sinks (MQTT, Valkey, Kafka).
package namespace

// Builder constructs namespace-prefixed topics and keys.
type Builder struct {
	namespace string
	selector  string
}

// New creates a new namespace builder.
func New(namespace, selector string) *Builder {
	return &Builder{
		namespace: namespace,
		selector:  selector,
	}
}

// --- MQTT (delimiter: /) ---

// MQTTTagTopic returns the topic for a tag sample: {ns}[/{sel}]/tags/{tag}
func (b *Builder) MQTTTagTopic(tag string) string {
	return b.mqttBase() + "/tags/" + tag
}

// MQTTHealthTopic returns the topic for historian health: {ns}[/{sel}]/health
func (b *Builder) MQTTHealthTopic() string {
	return b.mqttBase() + "/health"
}

// MQTTWriteTopic returns the topic for write requests: {ns}[/{sel}]/write
func (b *Builder) MQTTWriteTopic() string {
	return b.mqttBase() + "/write"
}

// MQTTWriteResponseTopic returns the topic for write responses: {ns}[/{sel}]/write/response
func (b *Builder) MQTTWriteResponseTopic() string {
	return b.mqttBase() + "/write/response"
}

// MQTTBase returns the base topic for JSON messages: {ns}[/{sel}]
func (b *Builder) MQTTBase() string {
	return b.mqttBase()
}

func (b *Builder) mqttBase() string {
	if b.selector != "" {
		return b.namespace + "/" + b.selector
	}
	return b.namespace
}

// --- Valkey (delimiter: :) ---

// ValkeyTagKey returns the key for a tag sample: {ns}[:{sel}]:tags:{tag}
func (b *Builder) ValkeyTagKey(tag string) string {
	return b.valkeyBase() + ":tags:" + tag
}

// ValkeyHealthKey returns the key for historian health: {ns}[:{sel}]:health
func (b *Builder) ValkeyHealthKey() string {
	return b.valkeyBase() + ":health"
}

// ValkeyChangesChannel returns the Pub/Sub channel for changes: {ns}[:{sel}]:changes
func (b *Builder) ValkeyChangesChannel() string {
	return b.valkeyBase() + ":changes"
}

// ValkeyWriteQueue returns the queue key for write requests: {ns}[:{sel}]:writes
func (b *Builder) ValkeyWriteQueue() string {
	return b.valkeyBase() + ":writes"
}

// ValkeyWriteResponseChannel returns the channel for write responses: {ns}[:{sel}]:write:responses
func (b *Builder) ValkeyWriteResponseChannel() string {
	return b.valkeyBase() + ":write:responses"
}

// ValkeyFactory returns the namespace identifier for JSON messages: {ns}[:{sel}]
func (b *Builder) ValkeyFactory() string {
	return b.valkeyBase()
}

func (b *Builder) valkeyBase() string {
	if b.selector != "" {
		return b.namespace + ":" + b.selector
	}
	return b.namespace
}

// --- Kafka (delimiter: - for topics, . for health) ---

// KafkaTagTopic returns the topic for tag samples: {ns}[-{sel}]
func (b *Builder) KafkaTagTopic() string {
	return b.kafkaBase()
}

// KafkaHealthTopic returns the topic for historian health: {ns}[-{sel}].health
func (b *Builder) KafkaHealthTopic() string {
	return b.kafkaBase() + ".health"
}

// KafkaWriteTopic returns the topic for write requests: {ns}[-{sel}]-writes
func (b *Builder) KafkaWriteTopic() string {
	return b.kafkaBase() + "-writes"
}

func (b *Builder) kafkaBase() string {
	if b.selector != "" {
		return b.namespace + "-" + b.selector
	}
	return b.namespace
}
