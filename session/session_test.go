// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hawire/lib/testutil"
	"github.com/bureau-foundation/hawire/wire"
)

// callAsync runs Call on its own goroutine and reports its error.
func callAsync(session *Session, command wire.Command, result any) <-chan error {
	outcome := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		outcome <- session.Call(ctx, command, result)
	}()
	return outcome
}

// waitUntil polls condition until it holds or the wait times out.
func waitUntil(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// subscribed completes a subscribe round trip and returns the
// subscription.
func subscribed(t *testing.T, session *Session, server *fakeServer, command wire.Subscription) *Subscription {
	t.Helper()
	outcome := subscribeAsync(session, command)
	request := server.receiveCommand(command.Type())
	server.result(request.RequestID(), "null")
	result := testutil.RequireReceive(t, outcome, waitTimeout, "subscribe %s", command.Type())
	if result.err != nil {
		t.Fatalf("Subscribe(%s): %v", command.Type(), result.err)
	}
	if result.subscription.ID() != request.RequestID() {
		t.Fatalf("subscription id = %d, command id = %d", result.subscription.ID(), request.RequestID())
	}
	if result.subscription.State() != Active {
		t.Fatalf("state after Subscribe = %v", result.subscription.State())
	}
	return result.subscription
}

func TestCallDecodesResult(t *testing.T) {
	session, server := connectSession(t, nil)

	var states []wire.State
	outcome := callAsync(session, &wire.GetStates{}, &states)
	request := server.receiveCommand(wire.TypeGetStates)
	server.result(request.RequestID(), `[{"entity_id":"light.kitchen","state":"on",`+
		`"last_changed":"2025-01-01T00:00:00Z","last_updated":"2025-01-01T00:00:00Z"}]`)

	if err := testutil.RequireReceive(t, outcome, waitTimeout); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(states) != 1 || states[0].EntityID != "light.kitchen" || states[0].State != "on" {
		t.Errorf("states = %+v", states)
	}
}

func TestCallRequestError(t *testing.T) {
	session, server := connectSession(t, nil)

	outcome := callAsync(session, &wire.CallService{Domain: "light", Service: "explode"}, nil)
	request := server.receiveCommand(wire.TypeCallService)
	server.failure(request.RequestID(), wire.ErrCodeNotFound, "Service light.explode not found.")

	err := testutil.RequireReceive(t, outcome, waitTimeout)
	var requestErr *wire.RequestError
	if !errors.As(err, &requestErr) {
		t.Fatalf("Call error = %v, want *wire.RequestError", err)
	}
	if requestErr.Code != wire.ErrCodeNotFound || requestErr.RequestID != request.RequestID() {
		t.Errorf("RequestError = %+v", requestErr)
	}
	if session.Err() != nil {
		t.Errorf("a failed command ended the session: %v", session.Err())
	}
}

func TestResultsResolveOutOfOrder(t *testing.T) {
	session, server := connectSession(t, nil)

	var first, second string
	firstDone := callAsync(session, &wire.FireEvent{EventType: "first"}, &first)
	firstID := server.receiveCommand(wire.TypeFireEvent).RequestID()
	secondDone := callAsync(session, &wire.FireEvent{EventType: "second"}, &second)
	secondID := server.receiveCommand(wire.TypeFireEvent).RequestID()

	server.result(secondID, `"for second"`)
	if err := testutil.RequireReceive(t, secondDone, waitTimeout); err != nil {
		t.Fatal(err)
	}
	testutil.RequireNoReceive(t, firstDone, 20*time.Millisecond, "first call finished before its result")

	server.result(firstID, `"for first"`)
	if err := testutil.RequireReceive(t, firstDone, waitTimeout); err != nil {
		t.Fatal(err)
	}
	if first != "for first" || second != "for second" {
		t.Errorf("first = %q, second = %q", first, second)
	}
}

func TestRequestIDsIncreaseOnTheWire(t *testing.T) {
	session, server := connectSession(t, nil)

	const count = 20
	var wg sync.WaitGroup
	for range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.Dispatch(&wire.Ping{}); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	var previous uint64
	for range count {
		id := server.receiveCommand(wire.TypePing).RequestID()
		if id <= previous {
			t.Fatalf("id %d after %d", id, previous)
		}
		previous = id
	}
	if previous != count {
		t.Errorf("last id = %d, want %d", previous, count)
	}
}

func TestCancelledRequestIgnoresLateResult(t *testing.T) {
	session, server := connectSession(t, nil)

	request, err := session.Dispatch(&wire.GetConfig{})
	if err != nil {
		t.Fatal(err)
	}
	server.receiveCommand(wire.TypeGetConfig)
	request.Cancel()
	if _, err := request.Await(context.Background()); !errors.Is(err, ErrRequestCancelled) {
		t.Fatalf("Await() = %v, want ErrRequestCancelled", err)
	}
	server.result(request.ID(), `{"late":true}`)

	// The session carries on with the next command.
	outcome := callAsync(session, &wire.GetPanels{}, nil)
	next := server.receiveCommand(wire.TypeGetPanels)
	if next.RequestID() != request.ID()+1 {
		t.Errorf("next id = %d, want %d", next.RequestID(), request.ID()+1)
	}
	server.result(next.RequestID(), `{}`)
	if err := testutil.RequireReceive(t, outcome, waitTimeout); err != nil {
		t.Fatal(err)
	}
}

func TestCallContextCancel(t *testing.T) {
	session, server := connectSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	outcome := make(chan error, 1)
	go func() { outcome <- session.Call(ctx, &wire.GetServices{}, nil) }()
	server.receiveCommand(wire.TypeGetServices)
	cancel()

	if err := testutil.RequireReceive(t, outcome, waitTimeout); !errors.Is(err, context.Canceled) {
		t.Fatalf("Call error = %v, want context.Canceled", err)
	}
	if session.pending.pendingCount() != 0 {
		t.Errorf("cancelled call still pending")
	}
}

func TestDispatchRejectsSubscriptions(t *testing.T) {
	session, server := connectSession(t, nil)
	if _, err := session.Dispatch(&wire.SubscribeEvents{}); err == nil {
		t.Fatal("Dispatch accepted a subscription command")
	}
	server.expectNothing()
}

func TestUnknownFrameGoesToHandler(t *testing.T) {
	unknown := make(chan *wire.RawMessage, 1)
	session, server := connectSession(t, func(config *Config) {
		config.UnknownHandler = func(message *wire.RawMessage) { unknown <- message }
	})

	server.sendRaw(`{"id":77,"type":"mystery","value":1}`)
	message := testutil.RequireReceive(t, unknown, waitTimeout)
	if message.Type() != "mystery" || message.ID != 77 || !message.HasID {
		t.Errorf("unknown message = %+v", message)
	}
	if !strings.Contains(string(message.Payload), `"value":1`) {
		t.Errorf("payload = %s", message.Payload)
	}
	if session.Err() != nil {
		t.Errorf("unknown frame ended the session: %v", session.Err())
	}
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	session, server := connectSession(t, nil)

	outcome := callAsync(session, &wire.GetStates{}, nil)
	id := server.receiveCommand(wire.TypeGetStates).RequestID()
	server.sendRaw(`{"id":"one","type":"result","success":true}`)
	server.sendRaw(`{{{`)
	server.result(id, `[]`)

	if err := testutil.RequireReceive(t, outcome, waitTimeout); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCoalescedFrames(t *testing.T) {
	server, client := newFakeServer(t, nil)
	server.queueHandshake()

	type connectOutcome struct {
		session *Session
		err     error
	}
	connected := make(chan connectOutcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		session, err := Connect(ctx, Config{
			Conn:             client,
			AccessToken:      testAccessToken(t),
			Logger:           testLogger(),
			CoalesceMessages: true,
		})
		connected <- connectOutcome{session, err}
	}()

	server.expectAuth()
	features, ok := server.receiveCommand(wire.TypeSupportedFeatures).(*wire.SupportedFeatures)
	if !ok || features.Features[wire.FeatureCoalesceMessages] != 1 {
		t.Fatalf("supported_features = %+v", features)
	}
	server.result(features.ID, "null")

	result := testutil.RequireReceive(t, connected, waitTimeout)
	if result.err != nil {
		t.Fatalf("Connect: %v", result.err)
	}
	session := result.session
	defer session.Close()

	first, err := session.Dispatch(&wire.Ping{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := session.Dispatch(&wire.Ping{})
	if err != nil {
		t.Fatal(err)
	}
	server.receiveCommand(wire.TypePing)
	server.receiveCommand(wire.TypePing)

	server.sendRaw(`[{"id":2,"type":"pong"},{"type":"result"},{"id":3,"type":"pong"}]`)
	testutil.RequireClosed(t, first.Done(), waitTimeout)
	testutil.RequireClosed(t, second.Done(), waitTimeout)
}

func TestPing(t *testing.T) {
	session, server := connectSession(t, nil)

	type pingOutcome struct {
		rtt time.Duration
		err error
	}
	outcome := make(chan pingOutcome, 1)
	go func() {
		rtt, err := session.Ping(context.Background())
		outcome <- pingOutcome{rtt, err}
	}()
	ping := server.receiveCommand(wire.TypePing)
	server.send(&wire.Pong{Envelope: wire.Envelope{ID: ping.RequestID()}})

	result := testutil.RequireReceive(t, outcome, waitTimeout)
	if result.err != nil || result.rtt < 0 {
		t.Errorf("Ping() = %v, %v", result.rtt, result.err)
	}
}

func TestSubscribeReceivesEventsAndUnsubscribes(t *testing.T) {
	session, server := connectSession(t, nil)
	subscription := subscribed(t, session, server, &wire.SubscribeEvents{EventType: "state_changed"})

	server.event(subscription.ID(), `{"event_type":"state_changed","data":{"entity_id":"light.a"}}`)
	server.event(subscription.ID(), `{"event_type":"state_changed","data":{"entity_id":"light.b"}}`)
	for _, want := range []string{"light.a", "light.b"} {
		event := testutil.RequireReceive(t, subscription.Events(), waitTimeout)
		var bus wire.BusEvent
		if err := event.Decode(&bus); err != nil {
			t.Fatal(err)
		}
		var data wire.StateChangedData
		if err := json.Unmarshal(bus.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.EntityID != want {
			t.Errorf("entity_id = %q, want %q", data.EntityID, want)
		}
	}

	done := make(chan error, 1)
	go func() { done <- subscription.Unsubscribe(context.Background()) }()
	unsubscribe, ok := server.receiveCommand(wire.TypeUnsubscribeEvents).(*wire.UnsubscribeEvents)
	if !ok || unsubscribe.Subscription != subscription.ID() {
		t.Fatalf("unsubscribe_events = %+v", unsubscribe)
	}
	server.result(unsubscribe.ID, "null")

	if err := testutil.RequireReceive(t, done, waitTimeout); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	testutil.RequireClosed(t, subscription.Events(), waitTimeout)
	if subscription.State() != Removed || subscription.Err() != nil {
		t.Errorf("after unsubscribe: state %v err %v", subscription.State(), subscription.Err())
	}

	// A second Unsubscribe has nothing to do.
	if err := subscription.Unsubscribe(context.Background()); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
	server.expectNothing()
}

func TestUnsubscribeNotFoundCountsAsSuccess(t *testing.T) {
	session, server := connectSession(t, nil)
	subscription := subscribed(t, session, server, &wire.SubscribeTrigger{Trigger: map[string]any{"platform": "sun"}})

	done := make(chan error, 1)
	go func() { done <- subscription.Unsubscribe(context.Background()) }()
	request := server.receiveCommand(wire.TypeUnsubscribeEvents)
	server.failure(request.RequestID(), wire.ErrCodeNotFound, "Subscription not found.")

	if err := testutil.RequireReceive(t, done, waitTimeout); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if subscription.State() != Removed {
		t.Errorf("state = %v", subscription.State())
	}
}

func TestSubscribeRejected(t *testing.T) {
	session, server := connectSession(t, nil)

	outcome := subscribeAsync(session, &wire.RenderTemplate{Template: "{{ broken"})
	request := server.receiveCommand(wire.TypeRenderTemplate)
	server.failure(request.RequestID(), wire.ErrCodeTemplateError, "unexpected end of template")

	result := testutil.RequireReceive(t, outcome, waitTimeout)
	if !wire.IsRequestError(result.err, wire.ErrCodeTemplateError) {
		t.Fatalf("Subscribe error = %v", result.err)
	}
	if session.registry.count() != 0 {
		t.Errorf("rejected subscription still registered")
	}
}

func TestSubscribeContextCancelUnsubscribes(t *testing.T) {
	session, server := connectSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	outcome := make(chan error, 1)
	go func() {
		_, err := session.Subscribe(ctx, &wire.SubscribeEvents{})
		outcome <- err
	}()
	id := server.receiveCommand(wire.TypeSubscribeEvents).RequestID()
	cancel()
	if err := testutil.RequireReceive(t, outcome, waitTimeout); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscribe error = %v, want context.Canceled", err)
	}

	unsubscribe := server.receiveCommand(wire.TypeUnsubscribeEvents).(*wire.UnsubscribeEvents)
	if unsubscribe.Subscription != id {
		t.Errorf("unsubscribed %d, want %d", unsubscribe.Subscription, id)
	}
	// The late acknowledgement and a stray event are both harmless.
	server.result(id, "null")
	server.event(id, `{}`)
	server.result(unsubscribe.ID, "null")
	waitUntil(t, "the unsubscribe to finish", func() bool { return session.pending.pendingCount() == 0 })
	if session.registry.count() != 0 {
		t.Errorf("cancelled subscription still registered")
	}
}

func TestExclusiveSubscriptionIsReplaced(t *testing.T) {
	session, server := connectSession(t, nil)
	previous := subscribed(t, session, server, &wire.SubscribeEntities{})

	outcome := subscribeAsync(session, &wire.SubscribeEntities{EntityIDs: []string{"light.kitchen"}})

	unsubscribe := server.receiveCommand(wire.TypeUnsubscribeEvents).(*wire.UnsubscribeEvents)
	if unsubscribe.Subscription != previous.ID() {
		t.Fatalf("unsubscribed %d, want %d", unsubscribe.Subscription, previous.ID())
	}
	testutil.RequireClosed(t, previous.Done(), waitTimeout)
	if !errors.Is(previous.Err(), ErrSubscriptionReplaced) {
		t.Errorf("previous Err() = %v, want ErrSubscriptionReplaced", previous.Err())
	}
	server.result(unsubscribe.ID, "null")

	request := server.receiveCommand(wire.TypeSubscribeEntities)
	server.result(request.RequestID(), "null")
	result := testutil.RequireReceive(t, outcome, waitTimeout)
	if result.err != nil {
		t.Fatalf("Subscribe: %v", result.err)
	}
	current := result.subscription

	server.event(previous.ID(), `{"a":{}}`)
	server.event(current.ID(), `{"a":{"light.kitchen":{"s":"on"}}}`)
	event := testutil.RequireReceive(t, current.Events(), waitTimeout)
	if event.ID != current.ID() {
		t.Errorf("event id = %d", event.ID)
	}
	if active := session.registry.activeOfKind(wire.TypeSubscribeEntities); len(active) != 1 || active[0] != current {
		t.Errorf("%d active subscribe_entities subscriptions", len(active))
	}
}

func TestNonExclusiveSubscriptionsCoexist(t *testing.T) {
	session, server := connectSession(t, nil)
	first := subscribed(t, session, server, &wire.SubscribeEvents{EventType: "state_changed"})
	second := subscribed(t, session, server, &wire.SubscribeEvents{EventType: "state_changed"})

	server.event(second.ID(), `{"to":"second"}`)
	server.event(first.ID(), `{"to":"first"}`)

	if got := testutil.RequireReceive(t, first.Events(), waitTimeout); string(got.Event) != `{"to":"first"}` {
		t.Errorf("first received %s", got.Event)
	}
	if got := testutil.RequireReceive(t, second.Events(), waitTimeout); string(got.Event) != `{"to":"second"}` {
		t.Errorf("second received %s", got.Event)
	}
	if first.State() != Active || second.State() != Active {
		t.Errorf("states %v %v", first.State(), second.State())
	}
}

func terminalCodec(t *testing.T) *wire.Codec {
	t.Helper()
	codec, err := wire.NewCodec(wire.Registration{
		Type: "test/terminal",
		New:  func() wire.Message { return &terminalSubscription{} },
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestTemporarySubscriptionCompletesAndUnsubscribes(t *testing.T) {
	session, server := connectSession(t, func(config *Config) {
		config.Codec = terminalCodec(t)
	})
	subscription := subscribed(t, session, server, &terminalSubscription{})

	server.event(subscription.ID(), `{"done":false}`)
	server.event(subscription.ID(), `{"done":true}`)
	testutil.RequireReceive(t, subscription.Events(), waitTimeout)
	testutil.RequireReceive(t, subscription.Events(), waitTimeout)
	testutil.RequireClosed(t, subscription.Done(), waitTimeout)
	if !subscription.Completed() || subscription.Err() != nil {
		t.Errorf("completed = %v err = %v", subscription.Completed(), subscription.Err())
	}

	unsubscribe := server.receiveCommand(wire.TypeUnsubscribeEvents).(*wire.UnsubscribeEvents)
	if unsubscribe.Subscription != subscription.ID() {
		t.Errorf("unsubscribed %d, want %d", unsubscribe.Subscription, subscription.ID())
	}
	server.event(subscription.ID(), `{"straggler":true}`)
	server.result(unsubscribe.ID, "null")
	waitUntil(t, "the subscription to be removed", func() bool { return subscription.State() == Removed })
}

func TestAssistPipelineRunCleansUpWithoutUnsubscribe(t *testing.T) {
	session, server := connectSession(t, nil)
	run := subscribed(t, session, server, &wire.AssistPipelineRun{
		StartStage: wire.PipelineStageIntent,
		EndStage:   wire.PipelineStageIntent,
		Input:      map[string]any{"text": "turn on the lights"},
	})

	server.event(run.ID(), `{"type":"run-start","data":{}}`)
	server.event(run.ID(), `{"type":"intent-end","data":{}}`)
	server.event(run.ID(), `{"type":"run-end","data":null}`)

	var types []string
	for event := range run.Events() {
		var pipeline wire.PipelineEvent
		if err := event.Decode(&pipeline); err != nil {
			t.Fatal(err)
		}
		types = append(types, pipeline.Type)
	}
	if strings.Join(types, ",") != "run-start,intent-end,run-end" {
		t.Errorf("pipeline events = %v", types)
	}
	if run.State() != Removed || !run.Completed() || run.Err() != nil {
		t.Errorf("state %v completed %v err %v", run.State(), run.Completed(), run.Err())
	}
	server.expectNothing()
}

func TestConnectionLossFailsEverything(t *testing.T) {
	session, server := connectSession(t, nil)
	first := subscribed(t, session, server, &wire.SubscribeEvents{})
	second := subscribed(t, session, server, &wire.SubscribeTrigger{Trigger: map[string]any{"platform": "time"}})

	var requests []*Request
	for range 3 {
		request, err := session.Dispatch(&wire.GetStates{})
		if err != nil {
			t.Fatal(err)
		}
		server.receiveCommand(wire.TypeGetStates)
		requests = append(requests, request)
	}
	server.conn.Close()

	testutil.RequireClosed(t, session.Done(), waitTimeout)
	for _, request := range requests {
		if _, err := request.Await(context.Background()); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("request %d: %v, want ErrConnectionClosed", request.ID(), err)
		}
	}
	for _, subscription := range []*Subscription{first, second} {
		testutil.RequireClosed(t, subscription.Done(), waitTimeout)
		if !errors.Is(subscription.Err(), ErrConnectionClosed) || subscription.State() != Removed {
			t.Errorf("subscription %d: state %v err %v", subscription.ID(), subscription.State(), subscription.Err())
		}
	}

	err := session.Err()
	if !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, io.EOF) {
		t.Errorf("Err() = %v, want ConnectionClosed caused by EOF", err)
	}
	if _, err := session.Dispatch(&wire.Ping{}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Dispatch after loss = %v", err)
	}
	if _, err := session.Subscribe(context.Background(), &wire.SubscribeEvents{}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Subscribe after loss = %v", err)
	}
}

func TestCloseEndsSession(t *testing.T) {
	session, server := connectSession(t, nil)
	subscription := subscribed(t, session, server, &wire.SubscribeEvents{})
	request, err := session.Dispatch(&wire.GetConfig{})
	if err != nil {
		t.Fatal(err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if session.Err() != ErrConnectionClosed {
		t.Errorf("Err() = %v, want ErrConnectionClosed", session.Err())
	}
	if _, err := request.Await(context.Background()); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("pending request: %v", err)
	}
	testutil.RequireClosed(t, subscription.Done(), waitTimeout)
	if err := session.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// recordingTap keeps a copy of every observed frame.
type recordingTap struct {
	mu     sync.Mutex
	frames []tappedFrame
}

type tappedFrame struct {
	direction Direction
	frame     string
}

func (r *recordingTap) ObserveFrame(direction Direction, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, tappedFrame{direction, string(frame)})
}

func (r *recordingTap) snapshot() []tappedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tappedFrame(nil), r.frames...)
}

func TestTapObservesBothDirections(t *testing.T) {
	tap := &recordingTap{}
	session, server := connectSession(t, func(config *Config) { config.Tap = tap })

	outcome := callAsync(session, &wire.GetConfig{}, nil)
	request := server.receiveCommand(wire.TypeGetConfig)
	server.result(request.RequestID(), `{}`)
	if err := testutil.RequireReceive(t, outcome, waitTimeout); err != nil {
		t.Fatal(err)
	}

	frames := tap.snapshot()
	want := []struct {
		direction Direction
		fragment  string
	}{
		{Inbound, `"auth_required"`},
		{Outbound, `"access_token":"` + testToken + `"`},
		{Inbound, `"auth_ok"`},
		{Outbound, `"get_config"`},
		{Inbound, `"result"`},
	}
	if len(frames) != len(want) {
		t.Fatalf("tapped %d frames, want %d: %v", len(frames), len(want), frames)
	}
	for i, expected := range want {
		if frames[i].direction != expected.direction || !strings.Contains(frames[i].frame, expected.fragment) {
			t.Errorf("frame %d = %s %s, want %s containing %s",
				i, frames[i].direction, frames[i].frame, expected.direction, expected.fragment)
		}
	}
}
