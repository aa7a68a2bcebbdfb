// Package session implements the Session Registry (spec.md §4.4): an
// append-only, totally ordered per-session output log with replay for
// subscribers joining mid-stream. Grounded on the teacher's
// internal/web/sse.Handler pub/sub shape (per-client buffered channel,
// non-blocking fan-out, explicit unsubscribe), retargeted from a single
// global event broadcast to a per-session log with a bounded replay buffer
// and linearisability guarantees the teacher's handler doesn't need.
package session

import (
	"sync"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// subscriberBuffer bounds each subscriber's live channel. Matches the
// teacher's sse.client's fixed 100-slot events channel in spirit, sized up
// because a session's output rate can spike far above a UI event stream's.
const subscriberBuffer = 1024

// ProcessControl is the subset of core.ProcessHandle the registry needs to
// route send-input(session-id, bytes) / terminate / kill (spec.md §4.4) to
// the interactive process backing an external-CLI session. Kept as a local
// interface, same shape-only-dependency pattern as internal/tool's
// ApprovalBroker.
type ProcessControl interface {
	SendInput(data []byte) error
	Cancel() error
}

type sessionState struct {
	mu          sync.Mutex
	info        core.SessionInfo
	buffer      []core.SessionOutput
	bufferBytes int
	truncated   bool
	nextSeq     uint64
	subscribers map[chan core.SessionOutput]struct{}
	control     ProcessControl
}

// Registry owns every live session's output log and subscriber set. All
// mutating operations are logically single-threaded per session: Publish and
// Subscribe each take the session's own lock, never the registry's, once
// they've looked the session up — so two different sessions never contend.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*sessionState
	bufferLimit int
	log         *logging.Logger
}

func New(bufferLimitBytes int, log *logging.Logger) *Registry {
	if bufferLimitBytes <= 0 {
		bufferLimitBytes = 1 << 20
	}
	return &Registry{
		sessions:    make(map[string]*sessionState),
		bufferLimit: bufferLimitBytes,
		log:         logging.Or(log),
	}
}

// Create registers a new pending session for taskID. Creating a session id
// twice is a conflict: sessions are not reusable once allocated.
func (r *Registry) Create(sessionID, taskID string) (core.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sessionID]; exists {
		return core.SessionInfo{}, core.ErrConflict("SESSION_EXISTS", "session already exists: "+sessionID)
	}
	st := &sessionState{
		info:        core.SessionInfo{SessionID: sessionID, TaskID: taskID, Status: core.SessionPending},
		subscribers: make(map[chan core.SessionOutput]struct{}),
	}
	r.sessions[sessionID] = st
	return st.info, nil
}

// Start transitions a session to running, the first observable state after
// creation.
func (r *Registry) Start(sessionID string) error {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.ErrNotFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.info.Status = core.SessionRunning
	return nil
}

// Attach wires the process backing an external-CLI session to the
// registry so SendInput/Terminate/Kill have something to act on. Embedded
// (in-process Agent Loop) sessions never attach a control, so SendInput on
// them fails with not-running and Terminate/Kill are no-ops.
func (r *Registry) Attach(sessionID string, control ProcessControl) error {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.ErrNotFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.control = control
	return nil
}

// SendInput implements send-input(session-id, bytes): writes to the
// process's stdin for an interactive session. Fails with not-running
// otherwise, per spec.md §4.4.
func (r *Registry) SendInput(sessionID string, data []byte) error {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.ErrNotFound("session", sessionID)
	}
	st.mu.Lock()
	control, status := st.control, st.info.Status
	st.mu.Unlock()
	if control == nil || status.Terminal() {
		return core.ErrState(core.CodeNotRunning, "session "+sessionID+" is not running")
	}
	return control.SendInput(data)
}

// Terminate implements terminate(session-id): a graceful shutdown request.
// Idempotent — terminating an already-terminal or uncontrolled session is a
// no-op, matching the broader cancellation-idempotence invariant.
func (r *Registry) Terminate(sessionID string) error {
	return r.signal(sessionID)
}

// Kill implements kill(session-id): spec.md §4.3/§4.4 describe the same
// graceful-then-forceful escalation for both terminate and kill — the
// Process Supervisor's handle.Cancel already performs that escalation, so
// both registry operations route through it. Idempotent like Terminate.
func (r *Registry) Kill(sessionID string) error {
	return r.signal(sessionID)
}

func (r *Registry) signal(sessionID string) error {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.ErrNotFound("session", sessionID)
	}
	st.mu.Lock()
	control, status := st.control, st.info.Status
	st.mu.Unlock()
	if control == nil || status.Terminal() {
		return nil
	}
	return control.Cancel()
}

func (r *Registry) lookup(sessionID string) (*sessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[sessionID]
	return st, ok
}

// Publish implements internal/agentloop.SessionSink: it appends one output
// entry and fans it out to every live subscriber. Publishing to an already
// terminal session is rejected — a session's log is closed the instant it
// reaches a terminal state.
func (r *Registry) Publish(sessionID string, kind core.OutputKind, data []byte) error {
	_, err := r.append(sessionID, kind, data, nil)
	return err
}

func (r *Registry) append(sessionID string, kind core.OutputKind, data []byte, exitCode *int) (core.SessionOutput, error) {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.SessionOutput{}, core.ErrNotFound("session", sessionID)
	}

	st.mu.Lock()
	if st.info.Status.Terminal() {
		st.mu.Unlock()
		return core.SessionOutput{}, core.ErrState(core.CodeNotRunning, "session "+sessionID+" is already terminal")
	}
	entry := core.SessionOutput{Seq: st.nextSeq, Kind: kind, Data: data, ExitCode: exitCode, Timestamp: time.Now()}
	st.nextSeq++
	st.appendLocked(entry, r.bufferLimit)
	st.info.CumulativeBytes += int64(len(data))

	subs := make([]chan core.SessionOutput, 0, len(st.subscribers))
	for ch := range st.subscribers {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- entry:
		default:
			r.log.With("session_id", sessionID).Warn("subscriber channel full, dropping event")
		}
	}
	return entry, nil
}

// appendLocked adds entry to the replay buffer, evicting the oldest entries
// once bufferBytes exceeds limit and marking the session truncated so the
// next subscriber sees an explicit gap marker rather than a silently
// shortened prefix.
func (st *sessionState) appendLocked(entry core.SessionOutput, limit int) {
	st.buffer = append(st.buffer, entry)
	st.bufferBytes += len(entry.Data)
	for st.bufferBytes > limit && len(st.buffer) > 1 {
		removed := st.buffer[0]
		st.buffer = st.buffer[1:]
		st.bufferBytes -= len(removed.Data)
		st.truncated = true
	}
}

// Subscribe returns a channel that first replays the session's buffered
// prefix (preceded by a truncated marker if the buffer ever evicted
// anything), then streams live output. If the session is already terminal,
// the returned channel delivers the full replay and is closed immediately —
// no live half ever opens. cancel must be called exactly once to release the
// subscription; it is a no-op for an already-terminal (pre-closed) channel.
func (r *Registry) Subscribe(sessionID string) (<-chan core.SessionOutput, func(), error) {
	st, ok := r.lookup(sessionID)
	if !ok {
		return nil, nil, core.ErrNotFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	capacity := len(st.buffer) + subscriberBuffer
	if st.truncated {
		capacity++
	}
	ch := make(chan core.SessionOutput, capacity)
	if st.truncated {
		ch <- core.SessionOutput{Kind: core.OutputTruncated, Timestamp: time.Now()}
	}
	for _, entry := range st.buffer {
		ch <- entry
	}

	if st.info.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	st.subscribers[ch] = struct{}{}
	cancel := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, present := st.subscribers[ch]; present {
			delete(st.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Finish moves a session to a terminal status, appends the closing output
// entry (exit for a clean/non-zero exit, terminated for an explicit
// kill), and closes every live subscriber channel after that entry so no
// subscriber misses the terminal marker.
func (r *Registry) Finish(sessionID string, status core.SessionStatus, exitCode *int) error {
	if !status.Terminal() {
		return core.ErrValidation(core.CodeInvalidArguments, "Finish requires a terminal status, got "+string(status))
	}
	kind := core.OutputExit
	if status == core.SessionTerminated {
		kind = core.OutputTerminated
	}
	return r.closeSession(sessionID, status, []core.OutputKind{kind}, exitCode)
}

// FinishTimedOut closes a session whose task was killed for exceeding its
// timeout: the log's final two entries are exit(exitCode) followed by
// terminated, rather than Finish's single closing entry, so a subscriber
// sees both the non-zero exit and the forced termination that produced it.
func (r *Registry) FinishTimedOut(sessionID string, exitCode *int) error {
	return r.closeSession(sessionID, core.SessionFailed, []core.OutputKind{core.OutputExit, core.OutputTerminated}, exitCode)
}

// closeSession appends one closing entry per kind in order, transitions the
// session to status, and closes every live subscriber channel after the
// last entry so no subscriber misses the terminal marker. Only the first
// entry carries exitCode; a terminated entry that follows an exit entry
// marks the forced kill itself, which has no exit code of its own.
func (r *Registry) closeSession(sessionID string, status core.SessionStatus, kinds []core.OutputKind, exitCode *int) error {
	if !status.Terminal() {
		return core.ErrValidation(core.CodeInvalidArguments, "closeSession requires a terminal status, got "+string(status))
	}

	st, ok := r.lookup(sessionID)
	if !ok {
		return core.ErrNotFound("session", sessionID)
	}

	st.mu.Lock()
	if st.info.Status.Terminal() {
		st.mu.Unlock()
		return nil
	}
	entries := make([]core.SessionOutput, 0, len(kinds))
	for i, kind := range kinds {
		var ec *int
		if i == 0 {
			ec = exitCode
		}
		entry := core.SessionOutput{Seq: st.nextSeq, Kind: kind, ExitCode: ec, Timestamp: time.Now()}
		st.nextSeq++
		st.appendLocked(entry, r.bufferLimit)
		entries = append(entries, entry)
	}
	st.info.Status = status
	st.info.ExitCode = exitCode

	subs := make([]chan core.SessionOutput, 0, len(st.subscribers))
	for ch := range st.subscribers {
		subs = append(subs, ch)
	}
	st.subscribers = make(map[chan core.SessionOutput]struct{})
	st.mu.Unlock()

	for _, ch := range subs {
		for _, entry := range entries {
			select {
			case ch <- entry:
			default:
			}
		}
		close(ch)
	}
	return nil
}

// Info returns a snapshot of one session's metadata.
func (r *Registry) Info(sessionID string) (core.SessionInfo, bool) {
	st, ok := r.lookup(sessionID)
	if !ok {
		return core.SessionInfo{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.info, true
}

// List returns every known session's metadata, sorted is left to callers —
// ordering is not a Session Registry concern (the Task Router owns
// submission order).
func (r *Registry) List() []core.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SessionInfo, 0, len(r.sessions))
	for _, st := range r.sessions {
		st.mu.Lock()
		out = append(out, st.info)
		st.mu.Unlock()
	}
	return out
}
