// Package events is the orchestration core's internal pub/sub: structured
// observability events (task submitted, worktree created, approval
// resolved...) fan out to any number of subscribers without coupling
// publishers to a concrete sink. It is distinct from internal/session,
// which carries a single task's raw output bytes, not core lifecycle
// events.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is the common shape every published event satisfies.
type Event interface {
	EventType() string
	Timestamp() time.Time
	TaskID() string
}

// BaseEvent supplies the common fields; concrete event types embed it.
type BaseEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"timestamp"`
	Task string    `json:"task_id"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) TaskID() string       { return e.Task }

func NewBaseEvent(eventType, taskID string) BaseEvent {
	return BaseEvent{Type: eventType, Time: time.Now(), Task: taskID}
}

// Subscriber is one registered listener: a buffered channel plus its
// filters. Regular subscribers may drop events under backpressure (ring
// buffer); priority subscribers block the publisher instead, for events
// that must never be lost (task terminal transitions).
type Subscriber struct {
	ch       chan Event
	types    map[string]bool // empty means all types
	taskID   string          // empty means no task filter
	priority bool
}

// EventBus is a single-process pub/sub hub. All mutating operations
// (Subscribe/Unsubscribe/Close) serialize through the mutex; Publish only
// needs a read lock since it never mutates the subscriber slices.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving every event of the given types
// (all types if none given) for every task.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.SubscribeForTask("", types...)
}

// SubscribeForTask filters to one task id; empty means no filter.
func (eb *EventBus) SubscribeForTask(taskID string, types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &Subscriber{ch: make(chan Event, eb.bufferSize), types: typeSet(types), taskID: taskID}
	eb.subscribers = append(eb.subscribers, sub)
	return sub.ch
}

// SubscribePriority returns a never-drop subscription for events a caller
// cannot afford to miss — e.g. a reconciliation loop watching for terminal
// task transitions.
func (eb *EventBus) SubscribePriority(types ...string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &Subscriber{ch: make(chan Event, 50), types: typeSet(types), priority: true}
	eb.prioritySubs = append(eb.prioritySubs, sub)
	return sub.ch
}

func typeSet(types []string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan Event) []*Subscriber {
	out := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch == ch {
			close(sub.ch)
			continue
		}
		out = append(out, sub)
	}
	return out
}

func (sub *Subscriber) matches(eventType, taskID string) bool {
	if sub.taskID != "" && taskID != sub.taskID {
		return false
	}
	if len(sub.types) > 0 && !sub.types[eventType] {
		return false
	}
	return true
}

// Publish delivers to every matching regular subscriber, dropping the
// oldest buffered event on overflow rather than blocking the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	eb.deliverRegular(event)
}

// PublishPriority delivers to regular subscribers the same way Publish
// does, then blocks delivering to every matching priority subscriber.
func (eb *EventBus) PublishPriority(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	eb.deliverRegular(event)

	eventType, taskID := event.EventType(), event.TaskID()
	for _, sub := range eb.prioritySubs {
		if sub.matches(eventType, taskID) {
			sub.ch <- event
		}
	}
}

func (eb *EventBus) deliverRegular(event Event) {
	eventType, taskID := event.EventType(), event.TaskID()
	for _, sub := range eb.subscribers {
		if sub.matches(eventType, taskID) {
			eb.deliverRingBuffer(sub, event)
		}
	}
}

func (eb *EventBus) deliverRingBuffer(sub *Subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	select {
	case <-sub.ch:
		atomic.AddInt64(&eb.droppedCount, 1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		atomic.AddInt64(&eb.droppedCount, 1)
	}
}

func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}
