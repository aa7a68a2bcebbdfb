package core

import "time"

// SessionStatus mirrors the task lifecycle but is owned by the Session
// Registry, not the Router: `terminated` is reached only via explicit
// kill/terminate, distinct from a clean `completed` exit.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionRunning    SessionStatus = "running"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionTerminated SessionStatus = "terminated"
)

func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionTerminated:
		return true
	default:
		return false
	}
}

// OutputKind tags a SessionOutput event.
type OutputKind string

const (
	OutputStdout     OutputKind = "stdout"
	OutputStderr     OutputKind = "stderr"
	OutputPrefix     OutputKind = "prefix" // replay chunk delivered to a new subscriber
	OutputTruncated  OutputKind = "truncated"
	OutputExit       OutputKind = "exit"
	OutputTerminated OutputKind = "terminated"
)

// SessionOutput is one entry in a session's append-only, totally ordered
// event log. Seq is monotonic per session starting at 0.
type SessionOutput struct {
	Seq       uint64     `json:"seq"`
	Kind      OutputKind `json:"kind"`
	Data      []byte     `json:"data,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// SessionInfo is the read-only snapshot returned by info(session-id).
type SessionInfo struct {
	SessionID       string        `json:"session_id"`
	TaskID          string        `json:"task_id"`
	Status          SessionStatus `json:"status"`
	CumulativeBytes int64         `json:"cumulative_bytes"`
	ExitCode        *int          `json:"exit_code,omitempty"`
}
