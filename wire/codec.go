// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Registration binds a discriminator to a constructor returning a new,
// empty message of that type.
type Registration struct {
	Type string
	New  func() Message
}

// builtinRegistrations is the discriminator table for every type in
// this package. Both directions are registered so that the codec can
// decode what it encodes (fake servers in tests rely on this).
var builtinRegistrations = []Registration{
	{TypeAuth, func() Message { return new(Auth) }},
	{TypeSupportedFeatures, func() Message { return new(SupportedFeatures) }},
	{TypePing, func() Message { return new(Ping) }},
	{TypeGetStates, func() Message { return new(GetStates) }},
	{TypeGetConfig, func() Message { return new(GetConfig) }},
	{TypeGetServices, func() Message { return new(GetServices) }},
	{TypeGetPanels, func() Message { return new(GetPanels) }},
	{TypeCallService, func() Message { return new(CallService) }},
	{TypeFireEvent, func() Message { return new(FireEvent) }},
	{TypeSubscribeEvents, func() Message { return new(SubscribeEvents) }},
	{TypeSubscribeTrigger, func() Message { return new(SubscribeTrigger) }},
	{TypeSubscribeEntities, func() Message { return new(SubscribeEntities) }},
	{TypeRenderTemplate, func() Message { return new(RenderTemplate) }},
	{TypeAssistPipelineRun, func() Message { return new(AssistPipelineRun) }},
	{TypeUnsubscribeEvents, func() Message { return new(UnsubscribeEvents) }},
	{TypeAuthRequired, func() Message { return new(AuthRequired) }},
	{TypeAuthOK, func() Message { return new(AuthOK) }},
	{TypeAuthInvalid, func() Message { return new(AuthInvalid) }},
	{TypeResult, func() Message { return new(Result) }},
	{TypeEvent, func() Message { return new(Event) }},
	{TypePong, func() Message { return new(Pong) }},
}

// defaultCodec holds the builtin table. It is built during package
// initialization, before any caller can decode a frame, and is
// read-only from then on.
var defaultCodec *Codec

func init() {
	var err error
	defaultCodec, err = NewCodec()
	if err != nil {
		panic("wire: builtin discriminator table is invalid: " + err.Error())
	}
}

// DefaultCodec returns the codec for the builtin message types.
func DefaultCodec() *Codec { return defaultCodec }

// Codec encodes and decodes frames using an immutable discriminator
// table. A Codec is safe for concurrent use.
type Codec struct {
	constructors map[string]func() Message
}

// NewCodec returns a codec that knows the builtin types plus the given
// extensions. Each extension constructor must produce a message whose
// Type matches the registration; a discriminator may be registered
// only once.
func NewCodec(extensions ...Registration) (*Codec, error) {
	constructors := make(map[string]func() Message, len(builtinRegistrations)+len(extensions))
	all := make([]Registration, 0, len(builtinRegistrations)+len(extensions))
	all = append(all, builtinRegistrations...)
	all = append(all, extensions...)

	for _, registration := range all {
		if registration.Type == "" {
			return nil, fmt.Errorf("wire: registration with empty discriminator")
		}
		if registration.New == nil {
			return nil, fmt.Errorf("wire: registration %q has no constructor", registration.Type)
		}
		if _, exists := constructors[registration.Type]; exists {
			return nil, fmt.Errorf("wire: discriminator %q registered twice", registration.Type)
		}
		sample := registration.New()
		if sample == nil {
			return nil, fmt.Errorf("wire: constructor for %q returned nil", registration.Type)
		}
		if sample.Type() != registration.Type {
			return nil, fmt.Errorf("wire: constructor for %q builds a %q message", registration.Type, sample.Type())
		}
		constructors[registration.Type] = registration.New
	}

	return &Codec{constructors: constructors}, nil
}

// Knows reports whether messageType is registered.
func (c *Codec) Knows(messageType string) bool {
	_, ok := c.constructors[messageType]
	return ok
}

// Encode serializes message. The id (for identifiable messages with an
// assigned id) and the type are written first, followed by the
// message's own fields. Unregistered types are refused.
func (c *Codec) Encode(message Message) ([]byte, error) {
	if message == nil {
		return nil, fmt.Errorf("wire: cannot encode nil message")
	}
	messageType := message.Type()
	if !c.Knows(messageType) {
		return nil, fmt.Errorf("wire: cannot encode unregistered message type %q", messageType)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s: %w", messageType, err)
	}
	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		return nil, fmt.Errorf("wire: %s does not encode as a JSON object", messageType)
	}
	quotedType, err := json.Marshal(messageType)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding discriminator %q: %w", messageType, err)
	}

	var buffer bytes.Buffer
	buffer.Grow(len(body) + len(quotedType) + 32)
	buffer.WriteByte('{')
	if identifiable, ok := message.(Identifiable); ok && identifiable.RequestID() != 0 {
		buffer.WriteString(`"id":`)
		buffer.WriteString(strconv.FormatUint(identifiable.RequestID(), 10))
		buffer.WriteByte(',')
	}
	buffer.WriteString(`"type":`)
	buffer.Write(quotedType)
	if fields := bytes.TrimSpace(body[1 : len(body)-1]); len(fields) > 0 {
		buffer.WriteByte(',')
		buffer.Write(fields)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// Decode parses a single JSON object frame. Unknown discriminators
// produce a *RawMessage; every other failure is a
// *MalformedFrameError.
func (c *Codec) Decode(frame []byte) (Message, error) {
	var header struct {
		ID   json.RawMessage `json:"id"`
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(frame, &header); err != nil {
		return nil, &MalformedFrameError{Reason: "frame is not a JSON object", Err: err}
	}
	if len(header.Type) == 0 || string(header.Type) == "null" {
		return nil, &MalformedFrameError{Reason: "missing type discriminator"}
	}
	var messageType string
	if err := json.Unmarshal(header.Type, &messageType); err != nil {
		return nil, &MalformedFrameError{Reason: "type discriminator is not a string", Err: err}
	}
	if messageType == "" {
		return nil, &MalformedFrameError{Reason: "empty type discriminator"}
	}

	id, hasID, err := parseRequestID(header.ID)
	if err != nil {
		return nil, err
	}

	constructor, known := c.constructors[messageType]
	if !known {
		return &RawMessage{
			MessageType: messageType,
			ID:          id,
			HasID:       hasID,
			Payload:     append(json.RawMessage(nil), frame...),
		}, nil
	}

	message := constructor()
	if err := json.Unmarshal(frame, message); err != nil {
		return nil, &MalformedFrameError{Reason: "decoding " + messageType, Err: err}
	}
	if identifiable, ok := message.(Identifiable); ok && hasID {
		identifiable.SetRequestID(id)
	}
	return message, nil
}

// DecodeFrame parses a frame that holds either one message or, when
// the server coalesces, a JSON array of messages. Elements that fail
// to decode are left out and their errors joined; the remaining
// messages are still returned in order.
func (c *Codec) DecodeFrame(frame []byte) ([]Message, error) {
	trimmed := bytes.TrimLeft(frame, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		message, err := c.Decode(frame)
		if err != nil {
			return nil, err
		}
		return []Message{message}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, &MalformedFrameError{Reason: "coalesced frame is not a JSON array", Err: err}
	}
	messages := make([]Message, 0, len(elements))
	var errs []error
	for index, element := range elements {
		message, err := c.Decode(element)
		if err != nil {
			errs = append(errs, fmt.Errorf("element %d: %w", index, err))
			continue
		}
		messages = append(messages, message)
	}
	return messages, errors.Join(errs...)
}

// parseRequestID interprets the raw id field. An absent or null id is
// not an error; anything other than a non-negative integer is.
func parseRequestID(raw json.RawMessage) (uint64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false, &MalformedFrameError{Reason: fmt.Sprintf("id %s is not a non-negative integer", raw)}
	}
	return id, true, nil
}

// Encode serializes message with the default codec.
func Encode(message Message) ([]byte, error) { return defaultCodec.Encode(message) }

// Decode parses a frame with the default codec.
func Decode(frame []byte) (Message, error) { return defaultCodec.Decode(frame) }
