// Package router implements the Task Router (spec.md §4.1): the entry
// point for every task submission, responsible for classifying `auto`
// runner requests, allocating a workspace, and dispatching to whichever
// Runner the task resolved to under a bounded concurrency cap. Grounded on
// the teacher's internal/service/workflow Planner for the overall
// submit-then-dispatch shape, with the `auto` classifier itself grounded on
// internal/tui/chat's sahilm/fuzzy usage (fuzzy.Find over a small
// vocabulary) rather than the teacher's own LLM-driven planning step —
// §4.1 calls for a cheap keyword classifier, not a model call.
package router

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/events"
	"github.com/agentkit-run/agentkit/internal/logging"
	"github.com/agentkit-run/agentkit/internal/session"
)

// Sessions is the subset of internal/session.Registry the router and its
// runners depend on.
type Sessions interface {
	Create(sessionID, taskID string) (core.SessionInfo, error)
	Start(sessionID string) error
	Finish(sessionID string, status core.SessionStatus, exitCode *int) error
	FinishTimedOut(sessionID string, exitCode *int) error
	Publish(sessionID string, kind core.OutputKind, data []byte) error
	Attach(sessionID string, control session.ProcessControl) error
}

// Config bounds the router's behaviour: concurrency cap and the base
// branch new worktrees are created off.
type Config struct {
	MaxConcurrentTasks int
	BaseBranch         string
}

// Router owns the pending-task queue and every task's record. Submission
// is synchronous up through runner construction; actually running a task
// happens on a worker goroutine gated by the concurrency semaphore.
type Router struct {
	cfg       Config
	worktrees core.WorktreeManager
	sessions  Sessions
	embedded  Runner
	external  Runner
	bus       *events.EventBus
	log       *logging.Logger

	mu    sync.Mutex
	tasks map[string]*core.Task
	queue dispatchQueue
	seq   uint64
	ready chan struct{}

	sem *semaphore.Weighted
}

func New(cfg Config, worktrees core.WorktreeManager, sessions Sessions, embedded, external Runner, bus *events.EventBus, log *logging.Logger) *Router {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 4
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	r := &Router{
		cfg:       cfg,
		worktrees: worktrees,
		sessions:  sessions,
		embedded:  embedded,
		external:  external,
		bus:       bus,
		log:       logging.Or(log),
		tasks:     make(map[string]*core.Task),
		ready:     make(chan struct{}, 1),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
	}
	return r
}

// Run starts the dispatch loop and blocks until ctx is cancelled. Callers
// run it in its own goroutine.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ready:
		}
		for {
			dispatch, ok := r.popReady()
			if !ok {
				break
			}
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func(d *pendingDispatch) {
				defer r.sem.Release(1)
				d.run()
			}(dispatch)
		}
	}
}

func (r *Router) popReady() (*pendingDispatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&r.queue).(*queuedTask)
	return item.task, true
}

// Submit implements §4.1's submit operation: allocate a task id, resolve a
// working directory, classify `auto` requests, construct the chosen
// runner's dependencies, and enqueue the dispatch. It returns as soon as
// the task record exists; the task itself runs asynchronously.
func (r *Router) Submit(ctx context.Context, prompt string, kind core.RunnerKind, workspace string, priority core.Priority) (*core.Task, error) {
	if kind == "" {
		kind = core.RunnerAuto
	}
	if !kind.Valid() {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "invalid runner kind: "+string(kind))
	}
	if priority == "" {
		priority = core.PriorityNormal
	}
	if !priority.Valid() {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "invalid priority: "+string(priority))
	}

	task := core.NewTask(prompt, kind, workspace, priority)

	resolvedKind := kind
	var scores map[string]float64
	if kind == core.RunnerAuto {
		classification := classify(prompt, isCodeOrientedWorkspace(workspace))
		resolvedKind = classification.Kind
		scores = classification.Scores
	}
	task.RunnerKind = resolvedKind

	workingDir, err := r.resolveWorkingDir(ctx, task, workspace)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidArguments, "resolving workspace: "+err.Error())
	}

	runner := r.embedded
	if resolvedKind == core.RunnerExternalCLI {
		runner = r.external
	}
	if runner == nil {
		_ = task.Transition(core.TaskFailed)
		task.Result = &core.TaskResult{ErrorCode: "runner-unavailable", ErrorMessage: "no runner configured for kind " + string(resolvedKind)}
		r.store(task)
		return task, core.ErrState("RUNNER_UNAVAILABLE", "no runner configured for kind "+string(resolvedKind))
	}

	sessionID := task.ID
	if _, err := r.sessions.Create(sessionID, task.ID); err != nil {
		_ = task.Transition(core.TaskFailed)
		task.Result = &core.TaskResult{ErrorCode: "session-create-failed", ErrorMessage: err.Error()}
		r.store(task)
		return task, err
	}
	task.SessionID = sessionID

	r.store(task)
	r.bus.Publish(events.NewTaskSubmittedEvent(task.ID, resolvedKind, scores))

	dispatch := &pendingDispatch{
		taskID: task.ID,
		weight: priority.Weight(),
		run: func() {
			r.execute(task, runner, sessionID, workingDir)
		},
	}
	r.enqueue(dispatch)
	return task, nil
}

func (r *Router) resolveWorkingDir(ctx context.Context, task *core.Task, workspace string) (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	wt, err := r.worktrees.Create(ctx, task.ID, r.cfg.BaseBranch)
	if err != nil {
		return "", err
	}
	task.WorktreeID = task.ID
	return wt.Path, nil
}

func (r *Router) execute(task *core.Task, runner Runner, sessionID, workingDir string) {
	if err := r.transition(task, core.TaskRunning); err != nil {
		r.log.With("task_id", task.ID).Warn("cannot start task", "error", err)
		return
	}

	result, err := runner.Run(context.Background(), task, sessionID, workingDir)
	if err != nil {
		r.log.With("task_id", task.ID).Error("runner failed", "error", err)
		task.Result = &core.TaskResult{ErrorCode: "runner-error", ErrorMessage: err.Error()}
		_ = r.transition(task, core.TaskFailed)
		return
	}

	task.Result = result
	status := core.TaskCompleted
	if result.ErrorCode != "" {
		status = core.TaskFailed
	}
	_ = r.transition(task, status)
}

func (r *Router) transition(task *core.Task, to core.TaskStatus) error {
	from := task.Status
	if err := task.Transition(to); err != nil {
		return err
	}
	r.bus.Publish(events.NewTaskStatusChangedEvent(task.ID, from, to))
	return nil
}

func (r *Router) store(task *core.Task) {
	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
}

func (r *Router) enqueue(d *pendingDispatch) {
	r.mu.Lock()
	r.seq++
	heap.Push(&r.queue, &queuedTask{task: d, seq: r.seq})
	r.mu.Unlock()

	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Get returns a snapshot of one task's current record.
func (r *Router) Get(taskID string) (*core.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// List returns a snapshot of every known task.
func (r *Router) List() []*core.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}
