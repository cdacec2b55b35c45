package events

import (
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Errorf("unexpected event %s", ev.EventType())
	case <-time.After(10 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TaskStartedEvent{ID: "hotel_search_001", Agent: "hotel", Attempt: 1, Timestamp: time.Now()})

	received := receive(t, ch)
	if received.TaskID() != "hotel_search_001" {
		t.Errorf("expected task ID 'hotel_search_001', got '%s'", received.TaskID())
	}
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskCompletedEvent{ID: "email_002", Result: "sent", Duration: time.Second, Timestamp: time.Now()})

	for i, ch := range []<-chan Event{ch1, ch2} {
		if got := receive(t, ch).TaskID(); got != "email_002" {
			t.Errorf("subscriber %d: expected task ID 'email_002', got '%s'", i+1, got)
		}
	}
}

func TestNonBlockingSendCountsDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskRetryEvent{ID: "taxi_fabric_002", Attempt: i + 1, Err: errors.New("run failed")})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	if ev := receive(t, ch); ev.(TaskRetryEvent).Attempt != 1 {
		t.Errorf("expected first attempt to be buffered, got %d", ev.(TaskRetryEvent).Attempt)
	}
	if got := bus.Dropped(); got != 9 {
		t.Errorf("expected 9 dropped deliveries, got %d", got)
	}
}

func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		received := 0
		for range c {
			received++
		}
		if received != 0 {
			t.Errorf("expected 0 events after close, got %d", received)
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()
	bus.Publish(TaskSkippedEvent{ID: "data_fusion_003", Reason: "upstream failed"})

	ch := bus.Subscribe(TopicTask, 1)
	if _, ok := <-ch; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

func TestTopicRouting(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	scenarioCh := bus.Subscribe(TopicScenario, 10)

	bus.Publish(TaskFailedEvent{ID: "taxi_genie_003", Err: errors.New("boom")})
	bus.Publish(GraphProgressEvent{Total: 5, Completed: 2, InProgress: 1, Pending: 2})

	if got := receive(t, taskCh).EventType(); got != EventTypeTaskFailed {
		t.Errorf("task channel: expected task event, got %s", got)
	}
	if got := receive(t, scenarioCh).EventType(); got != EventTypeGraphProgress {
		t.Errorf("scenario channel: expected progress event, got %s", got)
	}
	expectNone(t, taskCh)
	expectNone(t, scenarioCh)
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(20)

	bus.Publish(ScenarioDetectedEvent{RunID: "r1", Scenario: "travel_query", Requested: "auto"})
	bus.Publish(ConflictResolvedEvent{ID: "conflict_resolution_003", Rule: "newest_priority", ConflictCount: 3})
	bus.Publish(ScenarioFinishedEvent{RunID: "r1", Success: true})

	want := []string{EventTypeScenarioDetected, EventTypeConflictResolved, EventTypeScenarioFinished}
	for i, w := range want {
		if got := receive(t, allCh).EventType(); got != w {
			t.Errorf("event %d: expected %s, got %s", i, w, got)
		}
	}
	expectNone(t, allCh)
}

func TestEventTopics(t *testing.T) {
	tests := []struct {
		event Event
		topic string
	}{
		{ScenarioDetectedEvent{}, TopicScenario},
		{GraphBuiltEvent{}, TopicScenario},
		{GraphProgressEvent{}, TopicScenario},
		{ScenarioFinishedEvent{}, TopicScenario},
		{TaskStartedEvent{}, TopicTask},
		{TaskRetryEvent{}, TopicTask},
		{TaskCompletedEvent{}, TopicTask},
		{TaskFailedEvent{}, TopicTask},
		{TaskSkippedEvent{}, TopicTask},
		{ConflictResolvedEvent{}, TopicTask},
	}
	for _, tt := range tests {
		if got := tt.event.Topic(); got != tt.topic {
			t.Errorf("%s: expected topic %s, got %s", tt.event.EventType(), tt.topic, got)
		}
	}
}
