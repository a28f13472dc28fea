package mcp

import (
	"fmt"
	"strings"
	"time"
)

// ServerStatus is the health state of a registered tool server
type ServerStatus string

const (
	StatusActive   ServerStatus = "active"
	StatusInactive ServerStatus = "inactive"
	StatusDegraded ServerStatus = "degraded"
	StatusUnknown  ServerStatus = "unknown"
)

// ServerRecord is one installable tool server in the registry
type ServerRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Type        string       `json:"type,omitempty"`
	Status      ServerStatus `json:"status,omitempty"`
	Stars       int          `json:"stars,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// EventType names a kind of registry change
type EventType string

const (
	EventRegistered    EventType = "registered"
	EventUpdated       EventType = "updated"
	EventStatusChanged EventType = "status_changed"
)

// AllEventTypes lists every EventType in a stable order
var AllEventTypes = []EventType{EventRegistered, EventUpdated, EventStatusChanged}

func (t EventType) Valid() bool {
	switch t {
	case EventRegistered, EventUpdated, EventStatusChanged:
		return true
	}
	return false
}

// ParseEventType accepts the wire names, case-insensitively
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// EventData is the payload of a ChangeEvent
type EventData struct {
	ToolID         string       `json:"toolId"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	URL            string       `json:"url,omitempty"`
	PreviousStatus ServerStatus `json:"previousStatus,omitempty"`
	CurrentStatus  ServerStatus `json:"currentStatus,omitempty"`
	Changes        []string     `json:"changes,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
}

// ChangeEvent is an immutable entry of the event log
type ChangeEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// Before orders events by timestamp, then id
func (e ChangeEvent) Before(other ChangeEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.ID < other.ID
}

// DataFromRecord builds the event payload describing r
func DataFromRecord(r ServerRecord) EventData {
	return EventData{
		ToolID:      r.ID,
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
		Tags:        r.Tags,
	}
}
