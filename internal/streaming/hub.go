package streaming

import (
	"context"

	"github.com/rendis/flowdesk/pkg/schema"
)

// EventFilter specifies which editor events a subscriber wants to receive.
type EventFilter struct {
	FlowID string   `json:"flow_id,omitempty"`
	Kinds  []string `json:"kinds,omitempty"`
}

// EventHub provides pub/sub for live editor events.
type EventHub interface {
	Publish(ctx context.Context, event schema.EditorEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.EditorEvent, func(), error)
}
