// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Auth is the credential frame sent in reply to auth_required. It is
// the only outgoing message without a request id.
type Auth struct {
	AccessToken string `json:"access_token"`
}

func (Auth) Type() string { return TypeAuth }

// FeatureCoalesceMessages asks the server to batch several messages
// into one frame (a JSON array) when it has more than one ready.
const FeatureCoalesceMessages = "coalesce_messages"

// SupportedFeatures announces optional protocol features. Sent once,
// right after authentication.
type SupportedFeatures struct {
	CommandHeader
	Features map[string]int `json:"features"`
}

func (SupportedFeatures) Type() string { return TypeSupportedFeatures }

// Ping is answered by a Pong carrying the same id.
type Ping struct {
	CommandHeader
}

func (Ping) Type() string { return TypePing }

// GetStates returns the current state of every entity.
type GetStates struct {
	CommandHeader
}

func (GetStates) Type() string { return TypeGetStates }

// GetConfig returns the server's core configuration.
type GetConfig struct {
	CommandHeader
}

func (GetConfig) Type() string { return TypeGetConfig }

// GetServices returns the service catalog grouped by domain.
type GetServices struct {
	CommandHeader
}

func (GetServices) Type() string { return TypeGetServices }

// GetPanels returns the registered frontend panels.
type GetPanels struct {
	CommandHeader
}

func (GetPanels) Type() string { return TypeGetPanels }

// Target selects the entities, devices, areas or labels a service
// call applies to.
type Target struct {
	EntityID []string `json:"entity_id,omitempty"`
	DeviceID []string `json:"device_id,omitempty"`
	AreaID   []string `json:"area_id,omitempty"`
	LabelID  []string `json:"label_id,omitempty"`
}

// CallService invokes domain.service. With ReturnResponse set, the
// result carries the service's response data.
type CallService struct {
	CommandHeader
	Domain         string         `json:"domain"`
	Service        string         `json:"service"`
	ServiceData    map[string]any `json:"service_data,omitempty"`
	Target         *Target        `json:"target,omitempty"`
	ReturnResponse bool           `json:"return_response,omitempty"`
}

func (CallService) Type() string { return TypeCallService }

// FireEvent puts an event on the server's event bus.
type FireEvent struct {
	CommandHeader
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
}

func (FireEvent) Type() string { return TypeFireEvent }

// UnsubscribeEvents cancels the subscription created by the command
// whose request id equals Subscription. It applies to every
// subscription kind, not only subscribe_events.
type UnsubscribeEvents struct {
	CommandHeader
	Subscription uint64 `json:"subscription"`
}

func (UnsubscribeEvents) Type() string { return TypeUnsubscribeEvents }
