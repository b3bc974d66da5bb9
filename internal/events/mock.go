package events

import (
	"context"
	"sync"
)

// MockPublisher records published events for tests.
type MockPublisher struct {
	mu        sync.Mutex
	published []PublishedEvent

	// Err, when set, is returned from every Publish call.
	Err error
}

// PublishedEvent is one recorded Publish call.
type PublishedEvent struct {
	Subject string
	Event   InvalidationEvent
}

var _ Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(_ context.Context, subject string, event InvalidationEvent) error {
	if m.Err != nil {
		return m.Err
	}

	m.mu.Lock()
	m.published = append(m.published, PublishedEvent{Subject: subject, Event: event})
	m.mu.Unlock()
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.published))
	copy(out, m.published)
	return out
}
