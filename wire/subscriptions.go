// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "encoding/json"

// SubscriptionTraits describes how a subscription kind behaves once
// the server has acknowledged it.
type SubscriptionTraits struct {
	// LongRunning subscriptions stay active until the client
	// unsubscribes. Temporary ones end when Terminal matches.
	LongRunning bool

	// Exclusive kinds allow one active subscription per connection.
	// Subscribing again replaces the previous one.
	Exclusive bool

	// ServerCleanup means the server drops a completed temporary
	// subscription on its own, so the client removes its local entry
	// without sending unsubscribe_events.
	ServerCleanup bool

	// Terminal reports whether an event payload ends a temporary
	// subscription. Ignored for long-running kinds.
	Terminal func(payload json.RawMessage) bool

	// Match claims event frames that arrive without a subscription
	// id. Nil means the kind only receives id-scoped events.
	Match func(payload json.RawMessage) bool
}

// Subscription is a command whose acknowledgement opens an event
// stream keyed by the command's request id.
type Subscription interface {
	Command
	Traits() SubscriptionTraits
}

// SubscribeEvents streams bus events, optionally restricted to one
// event type.
type SubscribeEvents struct {
	CommandHeader
	EventType string `json:"event_type,omitempty"`
}

func (SubscribeEvents) Type() string { return TypeSubscribeEvents }

func (s SubscribeEvents) Traits() SubscriptionTraits {
	eventType := s.EventType
	return SubscriptionTraits{
		LongRunning: true,
		Match: func(payload json.RawMessage) bool {
			if eventType == "" {
				return true
			}
			var probe struct {
				EventType string `json:"event_type"`
			}
			if err := json.Unmarshal(payload, &probe); err != nil {
				return false
			}
			return probe.EventType == eventType
		},
	}
}

// SubscribeTrigger streams a notification each time the automation
// trigger fires.
type SubscribeTrigger struct {
	CommandHeader
	Trigger   any            `json:"trigger"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (SubscribeTrigger) Type() string { return TypeSubscribeTrigger }

func (SubscribeTrigger) Traits() SubscriptionTraits {
	return SubscriptionTraits{LongRunning: true}
}

// SubscribeEntities streams compressed entity state diffs. The server
// keeps one such stream per client, so the kind is exclusive.
type SubscribeEntities struct {
	CommandHeader
	EntityIDs []string `json:"entity_ids,omitempty"`
}

func (SubscribeEntities) Type() string { return TypeSubscribeEntities }

func (SubscribeEntities) Traits() SubscriptionTraits {
	return SubscriptionTraits{LongRunning: true, Exclusive: true}
}

// RenderTemplate re-renders a template each time one of its inputs
// changes. Timeout (seconds) bounds the first render on the server.
type RenderTemplate struct {
	CommandHeader
	Template     string         `json:"template"`
	Variables    map[string]any `json:"variables,omitempty"`
	Timeout      float64        `json:"timeout,omitempty"`
	Strict       bool           `json:"strict,omitempty"`
	ReportErrors bool           `json:"report_errors,omitempty"`
}

func (RenderTemplate) Type() string { return TypeRenderTemplate }

func (RenderTemplate) Traits() SubscriptionTraits {
	return SubscriptionTraits{LongRunning: true}
}

// Pipeline stages accepted by AssistPipelineRun.
const (
	PipelineStageWakeWord = "wake_word"
	PipelineStageSTT      = "stt"
	PipelineStageIntent   = "intent"
	PipelineStageTTS      = "tts"
)

// PipelineEventRunEnd is the last event of every pipeline run.
const PipelineEventRunEnd = "run-end"

// AssistPipelineRun executes one voice assistant pipeline run. Its
// events end with run-end, after which the server discards the
// subscription by itself.
type AssistPipelineRun struct {
	CommandHeader
	StartStage     string         `json:"start_stage"`
	EndStage       string         `json:"end_stage"`
	Input          map[string]any `json:"input,omitempty"`
	Pipeline       string         `json:"pipeline,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Timeout        int            `json:"timeout,omitempty"`
}

func (AssistPipelineRun) Type() string { return TypeAssistPipelineRun }

func (AssistPipelineRun) Traits() SubscriptionTraits {
	return SubscriptionTraits{
		ServerCleanup: true,
		Terminal:      isPipelineRunEnd,
	}
}

func isPipelineRunEnd(payload json.RawMessage) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Type == PipelineEventRunEnd
}
