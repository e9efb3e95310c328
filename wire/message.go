// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Discriminators for every message this package knows how to encode
// or decode. Client-to-server types first, then server-to-client.
const (
	TypeAuth              = "auth"
	TypeSupportedFeatures = "supported_features"
	TypePing              = "ping"
	TypeGetStates         = "get_states"
	TypeGetConfig         = "get_config"
	TypeGetServices       = "get_services"
	TypeGetPanels         = "get_panels"
	TypeCallService       = "call_service"
	TypeFireEvent         = "fire_event"
	TypeSubscribeEvents   = "subscribe_events"
	TypeSubscribeTrigger  = "subscribe_trigger"
	TypeSubscribeEntities = "subscribe_entities"
	TypeRenderTemplate    = "render_template"
	TypeAssistPipelineRun = "assist_pipeline/run"
	TypeUnsubscribeEvents = "unsubscribe_events"

	TypeAuthRequired = "auth_required"
	TypeAuthOK       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
	TypeResult       = "result"
	TypeEvent        = "event"
	TypePong         = "pong"
)

// Message is any frame on the wire. Type returns the discriminator,
// which is constant for a given concrete type.
type Message interface {
	Type() string
}

// Identifiable is a message that carries a request id: commands sent
// by the client, and the results, events and pongs that echo the id
// back.
type Identifiable interface {
	Message
	RequestID() uint64
	SetRequestID(id uint64)
}

// Envelope holds the request id of an identifiable message. The codec
// writes and reads the id itself; encoding/json never sees it.
type Envelope struct {
	ID uint64 `json:"-"`
}

// RequestID returns the id, or 0 if none has been assigned.
func (e *Envelope) RequestID() uint64 { return e.ID }

// SetRequestID stamps the id.
func (e *Envelope) SetRequestID(id uint64) { e.ID = id }

// Command is an outgoing identifiable message. Only types embedding
// CommandHeader satisfy it, which keeps incoming messages such as
// Result from being dispatched by mistake.
type Command interface {
	Identifiable
	isCommand()
}

// CommandHeader is embedded by every outgoing command, including
// command types defined outside this package.
type CommandHeader struct {
	Envelope
}

func (CommandHeader) isCommand() {}
