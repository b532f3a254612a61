// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of event. Values are dotted, lower-case strings.
type EventType string

// Event types published by the built-in modules and the module manager.
const (
	UserCreated EventType = "user.created"
	UserUpdated EventType = "user.updated"
	UserDeleted EventType = "user.deleted"
	UserLogin   EventType = "user.login"

	DiaryCreated EventType = "diary.created"
	DiaryUpdated EventType = "diary.updated"
	DiaryDeleted EventType = "diary.deleted"

	DiaryEntryCreated EventType = "diary_entry.created"
	DiaryEntryUpdated EventType = "diary_entry.updated"
	DiaryEntryDeleted EventType = "diary_entry.deleted"

	MediaUploaded EventType = "media.uploaded"
	MediaDeleted  EventType = "media.deleted"

	ModuleInitialized EventType = "module.initialized"
	ModuleShutdown    EventType = "module.shutdown"
)

// AllEventTypes lists every known event type in declaration order.
func AllEventTypes() []EventType {
	return []EventType{
		UserCreated, UserUpdated, UserDeleted, UserLogin,
		DiaryCreated, DiaryUpdated, DiaryDeleted,
		DiaryEntryCreated, DiaryEntryUpdated, DiaryEntryDeleted,
		MediaUploaded, MediaDeleted,
		ModuleInitialized, ModuleShutdown,
	}
}

// Event is an immutable notification passed between modules. Handlers and
// middleware receive copies; middleware that rewrites an event returns a new
// value instead of mutating the one it was given.
type Event struct {
	ID        string            `json:"event_id"`
	Type      EventType         `json:"event_type"`
	Source    string            `json:"source_module"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]any    `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and the current UTC time. A nil
// payload becomes an empty map.
func NewEvent(eventType EventType, source string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WithMetadata returns a copy of e with key set in its metadata.
func (e Event) WithMetadata(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// PayloadString returns the payload value under key when it is a string.
func (e Event) PayloadString(key string) (string, bool) {
	v, ok := e.Payload[key].(string)
	return v, ok
}
