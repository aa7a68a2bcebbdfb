package core

import "time"

// ArtifactKind distinguishes the two durable output shapes a task may
// produce: a commit on its worktree branch, or a named file written by an
// approved tool.
type ArtifactKind string

const (
	ArtifactCommit ArtifactKind = "commit"
	ArtifactFile   ArtifactKind = "file"
)

// Artifact is a durable output that survives session termination; unlike
// the conversation transcript, it is never garbage collected with the
// session.
type Artifact struct {
	TaskID    string       `json:"task_id"`
	Kind      ArtifactKind `json:"kind"`
	Path      string       `json:"path,omitempty"`
	CommitSHA string       `json:"commit_sha,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Decision is a durable record of a policy-relevant choice made during a
// task — typically an Approval Request's resolution, archived after the
// session that produced it is gone.
type Decision struct {
	TaskID      string           `json:"task_id"`
	RequestID   string           `json:"request_id"`
	ToolName    string           `json:"tool_name"`
	Outcome     ApprovalDecision `json:"outcome"`
	DecidedAt   time.Time        `json:"decided_at"`
	DecidedBy   string           `json:"decided_by,omitempty"`
}
