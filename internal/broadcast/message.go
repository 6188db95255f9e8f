package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/journal/internal/domain"
)

// TypePostCreated is the event type sent for every new post.
const TypePostCreated = "post.created"

// Event is the JSON message pushed to live subscribers.
type Event struct {
	Type string      `json:"type"`
	Post domain.Post `json:"post"`
}

// EncodePostCreated returns the wire form of a post.created event.
func EncodePostCreated(post domain.Post) ([]byte, error) {
	data, err := json.Marshal(Event{Type: TypePostCreated, Post: post})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// ParseEvent decodes a live message. Unknown event types are returned as-is
// so callers can skip them.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("unmarshal event: missing type")
	}
	return &ev, nil
}
