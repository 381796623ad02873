package bus

import (
	"log/slog"
	"testing"
	"time"

	"tabula/internal/domain"
)

func TestPublish_RegistrationOrder(t *testing.T) {
	b := New(slog.Default())

	var order []string
	b.Subscribe(func(evt domain.ServerEvent) { order = append(order, "first") })
	b.Subscribe(func(evt domain.ServerEvent) { order = append(order, "second") })
	b.Subscribe(func(evt domain.ServerEvent) { order = append(order, "third") })

	b.Publish(domain.EventIssueCreated, map[string]any{"id": "issue_1"})

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("delivery order = %v", order)
	}
}

func TestPublish_EventShape(t *testing.T) {
	b := New(slog.Default())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	var got domain.ServerEvent
	b.Subscribe(func(evt domain.ServerEvent) { got = evt })

	b.Publish(domain.EventRunCompleted, map[string]any{"runId": "run_9"})

	if got.Type != domain.EventRunCompleted {
		t.Fatalf("type = %s", got.Type)
	}
	if got.Payload["runId"] != "run_9" {
		t.Fatalf("payload = %v", got.Payload)
	}
	if !got.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v", got.Timestamp)
	}
}

func TestPublish_PanicIsolation(t *testing.T) {
	b := New(slog.Default())

	delivered := false
	b.Subscribe(func(evt domain.ServerEvent) { panic("listener exploded") })
	b.Subscribe(func(evt domain.ServerEvent) { delivered = true })

	b.Publish(domain.EventIssueUpdated, nil)

	if !delivered {
		t.Fatal("panic in an earlier listener blocked delivery")
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := New(slog.Default())

	calls := 0
	unsub := b.Subscribe(func(evt domain.ServerEvent) { calls++ })
	b.Subscribe(func(evt domain.ServerEvent) {})

	unsub()
	unsub()

	if b.ListenerCount() != 1 {
		t.Fatalf("listener count = %d", b.ListenerCount())
	}

	b.Publish(domain.EventIssueCreated, nil)
	if calls != 0 {
		t.Fatalf("unsubscribed listener was invoked %d times", calls)
	}
}

func TestSubscribe_DuringPublishDoesNotReceive(t *testing.T) {
	b := New(slog.Default())

	lateCalls := 0
	b.Subscribe(func(evt domain.ServerEvent) {
		b.Subscribe(func(evt domain.ServerEvent) { lateCalls++ })
	})

	b.Publish(domain.EventIssueCreated, nil)
	if lateCalls != 0 {
		t.Fatalf("listener registered mid-publish received the event")
	}
}
