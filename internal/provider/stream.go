package provider

import (
	"context"
	"sync"

	"github.com/agentkit-run/agentkit/internal/core"
)

// eventStream is a channel-backed core.CompletionStream shared by the Mock
// and OpenAI providers: a producer goroutine feeds events in, Next drains
// them one at a time, and Close tears the producer down early on
// cancellation.
type eventStream struct {
	events chan core.CompletionEvent
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func newEventStream(buffer int) *eventStream {
	return &eventStream{
		events: make(chan core.CompletionEvent, buffer),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// emit delivers one event to the consumer, returning false if the stream
// was closed first (the producer should stop).
func (s *eventStream) emit(ctx context.Context, ev core.CompletionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// fail records a terminal producer error, surfaced on the next Next call
// once the event buffer drains.
func (s *eventStream) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *eventStream) Next(ctx context.Context) (core.CompletionEvent, error) {
	if err := ctx.Err(); err != nil {
		return core.CompletionEvent{}, err
	}
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errc:
		return core.CompletionEvent{}, err
	case <-ctx.Done():
		return core.CompletionEvent{}, ctx.Err()
	case <-s.done:
		return core.CompletionEvent{}, nil
	}
}

func (s *eventStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

var _ core.CompletionStream = (*eventStream)(nil)
