// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"time"
)

// Event types fired on the bus by every Home Assistant instance.
const (
	EventStateChanged        = "state_changed"
	EventCallService         = "call_service"
	EventServiceRegistered   = "service_registered"
	EventHomeAssistantStart  = "homeassistant_start"
	EventHomeAssistantStop   = "homeassistant_stop"
	EventComponentLoaded     = "component_loaded"
	EventCoreConfigUpdated   = "core_config_updated"
	EventAutomationTriggered = "automation_triggered"
)

// EventContext identifies the origin of a change.
type EventContext struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// BusEvent is the payload delivered by subscribe_events.
type BusEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	TimeFired time.Time       `json:"time_fired"`
	Context   *EventContext   `json:"context,omitempty"`
}

// State is one entity state as returned by get_states and carried in
// state_changed events.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Context     *EventContext  `json:"context,omitempty"`
}

// StateChangedData is the data of a state_changed event. OldState is
// nil for a newly added entity, NewState is nil for a removed one.
type StateChangedData struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

// TriggerEvent is the payload delivered by subscribe_trigger.
type TriggerEvent struct {
	Variables map[string]any `json:"variables"`
	Context   *EventContext  `json:"context,omitempty"`
}

// TemplateEvent is the payload delivered by render_template. Error and
// Level are set instead of Result when the template failed to render
// and report_errors was requested.
type TemplateEvent struct {
	Result    json.RawMessage `json:"result,omitempty"`
	Listeners json.RawMessage `json:"listeners,omitempty"`
	Error     string          `json:"error,omitempty"`
	Level     string          `json:"level,omitempty"`
}

// PipelineEvent is the payload delivered by assist_pipeline/run.
type PipelineEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}
