package store

import (
    "context"
    "time"
)

// Job states.
const (
    StatusQueued    = "queued"
    StatusRunning   = "running"
    StatusDone      = "done"
    StatusFailed    = "failed"
    StatusCancelled = "cancelled"
)

type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Terminal reports whether the job will not change state again.
func (s Status) Terminal() bool {
    return s.Status == StatusDone || s.Status == StatusFailed || s.Status == StatusCancelled
}

// StatusStore persists merge job status and the latest job of each session.
type StatusStore interface {
    Set(ctx context.Context, jobID string, st Status) error
    Get(ctx context.Context, jobID string) (Status, bool, error)
    SetSessionJob(ctx context.Context, sessionID, jobID string) error
    SessionJob(ctx context.Context, sessionID string) (string, error)
    Close() error
}
