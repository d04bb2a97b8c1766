// Package journal records task runs and delivery attempts for later inspection.
// Nothing in the journal is used to resume tasks.
package journal

import (
	"context"
	"time"
)

type Run struct {
	TaskID       string     `json:"task_id"`
	ThreadID     string     `json:"thread_id"`
	Owner        string     `json:"owner"`
	DelaySeconds int        `json:"delay_seconds"`
	Credentials  int        `json:"credentials"`
	Healthy      int        `json:"healthy"`
	State        string     `json:"state"`
	Reason       string     `json:"reason,omitempty"`
	Sent         int64      `json:"sent"`
	StartedAt    time.Time  `json:"started_at"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

type Delivery struct {
	TaskID       string
	Account      string
	Loop         int
	MessageIndex int
	Success      bool
	Error        string
	At           time.Time
}

type Recorder interface {
	TaskStarted(ctx context.Context, r Run) error
	TaskHealthy(ctx context.Context, taskID string, healthy int) error
	TaskStopped(ctx context.Context, taskID, reason string, sent int64, at time.Time) error
	Delivery(ctx context.Context, d Delivery) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) TaskStarted(context.Context, Run) error                              { return nil }
func (Nop) TaskHealthy(context.Context, string, int) error                      { return nil }
func (Nop) TaskStopped(context.Context, string, string, int64, time.Time) error { return nil }
func (Nop) Delivery(context.Context, Delivery) error                            { return nil }
func (Nop) Recent(context.Context, int) ([]Run, error)                          { return nil, nil }
