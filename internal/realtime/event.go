// Package realtime folds push events from the remote store into locally held state.
package realtime

import "fmt"

// EventType is the kind of row change a push event describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ParseEventType accepts the upper-case names emitted by the database trigger and
// their lower-case forms.
func ParseEventType(s string) (EventType, error) {
	switch s {
	case "INSERT", "insert":
		return EventInsert, nil
	case "UPDATE", "update":
		return EventUpdate, nil
	case "DELETE", "delete":
		return EventDelete, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// Identified is anything with a stable identity.
type Identified interface {
	ItemID() string
}

// Event is a single row change. New is set for inserts and updates, Old for deletes.
type Event[T any] struct {
	Type EventType `json:"type"`
	New  *T        `json:"new,omitempty"`
	Old  *T        `json:"old,omitempty"`
}
