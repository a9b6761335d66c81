package bus

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()

	var mu sync.Mutex
	var received []Event
	err := b.Subscribe(context.Background(), TopicValidationCompleted, func(ctx context.Context, e Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	event := NewEvent(TopicValidationCompleted, "test", "en", map[string]any{"verdict": "PASS"})
	if err := b.Publish(context.Background(), TopicValidationCompleted, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Close waits for handler delivery.
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].ID != event.ID || received[0].Language != "en" {
		t.Errorf("received = %+v, want %+v", received[0], event)
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	event := NewEvent(TopicRunStarted, "test", "", nil)
	if err := b.Publish(context.Background(), TopicRunStarted, event); err != nil {
		t.Errorf("Publish() with no subscribers error = %v, want nil", err)
	}
}

func TestMemoryBus_ClosedBus(t *testing.T) {
	b := NewMemoryBus()
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	event := NewEvent(TopicRunStarted, "test", "", nil)
	if err := b.Publish(context.Background(), TopicRunStarted, event); err == nil {
		t.Error("Publish() on closed bus should fail")
	}
	if err := b.Subscribe(context.Background(), TopicRunStarted, func(context.Context, Event) error { return nil }); err == nil {
		t.Error("Subscribe() on closed bus should fail")
	}

	// Closing twice is fine.
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		e := NewEvent(TopicRunStarted, "test", "", nil)
		if seen[e.ID] {
			t.Fatalf("duplicate event ID %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"localhost:9092", 1},
		{"a:9092, b:9092 ,c:9092", 3},
		{" , ", 0},
	}

	for _, tt := range tests {
		if got := ParseKafkaBrokers(tt.in); len(got) != tt.want {
			t.Errorf("ParseKafkaBrokers(%q) = %v, want %d brokers", tt.in, got, tt.want)
		}
	}
}

func TestNewKafkaBus_Validation(t *testing.T) {
	if _, err := NewKafkaBus(KafkaConfig{}, nil); err == nil {
		t.Error("NewKafkaBus() with no brokers should fail")
	}
}
