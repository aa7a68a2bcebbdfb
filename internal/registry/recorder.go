package registry

import (
	"context"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// TaskFetcher is the narrow slice of internal/router.Router's API this
// package depends on, so it doesn't need to import internal/router.
type TaskFetcher interface {
	Get(taskID string) (*core.Task, bool)
}

// Recorder subscribes to the event bus and persists every task that
// reaches a terminal status to a Store. Without it Store.Record is never
// called: the snapshot store exists but nothing feeds it.
type Recorder struct {
	store  Store
	source TaskFetcher
	bus    *events.EventBus
	log    *logging.Logger
}

func NewRecorder(store Store, source TaskFetcher, bus *events.EventBus, log *logging.Logger) *Recorder {
	return &Recorder{store: store, source: source, bus: bus, log: logging.Or(log)}
}

// Run blocks, recording every task that reaches a terminal status until ctx
// is cancelled. Meant to run in its own goroutine for the process lifetime;
// it subscribes with priority so a burst of terminal transitions can never
// be silently dropped by the regular ring buffer.
func (r *Recorder) Run(ctx context.Context) {
	ch := r.bus.SubscribePriority(events.TypeTaskStatusChange)
	defer r.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			changed, ok := ev.(events.TaskStatusChangedEvent)
			if !ok || !changed.To.Terminal() {
				continue
			}
			r.record(changed.TaskID())
		}
	}
}

func (r *Recorder) record(taskID string) {
	task, ok := r.source.Get(taskID)
	if !ok {
		return
	}
	if err := r.store.Record(task); err != nil {
		r.log.With("task_id", taskID).Warn("recording task snapshot failed", "error", err)
	}
}
