package events

import (
	"context"
	"sync"
)

// Recorder is a Publisher that keeps every event in memory. Services use it
// in tests to assert on what was published and when.
type Recorder struct {
	mu     sync.Mutex
	topics []string
	events map[string][]Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: map[string][]Event{}}
}

func (r *Recorder) Publish(_ context.Context, topic string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Type == "" {
		event.Type = topic
	}
	r.topics = append(r.topics, topic)
	r.events[topic] = append(r.events[topic], event)
	return nil
}

func (r *Recorder) Events(topic string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[topic]...)
}

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}
