// Package bus provides event bus implementations for Padi.
package bus

import (
	"fmt"

	"github.com/sipadi/padi/internal/domain"
)

// New creates an event bus from configuration.
//   - channel: in-process Go channels, for a single node.
//   - nats: NATS, for several replicas sharing work.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
