package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, namespace string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Subscribing with NamespaceAny receives the topic from every namespace.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, namespace string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, namespace string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl" mapstructure:"natsUrl"`
	NATSToken         string `json:"natsToken" mapstructure:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"natsReconnectWait"` // seconds
}

// Namespaces with special meaning.
const (
	// NamespaceSystem is used for service-wide events.
	NamespaceSystem = "system"
	// NamespaceAny subscribes to a topic in every namespace.
	NamespaceAny = "*"
)

// Topic names for the diagnosis pipeline.
const (
	TopicDiagnosisCompleted = "padi.diagnosis.completed"
	TopicTreatmentRequested = "padi.treatment.requested"
	TopicTreatmentReady     = "padi.treatment.ready"
)
