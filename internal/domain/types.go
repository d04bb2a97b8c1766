package domain

import "time"

type TaskState string

const (
	TaskCreated       TaskState = "created"
	TaskBootstrapping TaskState = "bootstrapping"
	TaskRunning       TaskState = "running"
	TaskStopped       TaskState = "stopped"
)

// StartRequest is a validated request to launch a delivery task.
type StartRequest struct {
	Credentials []string
	Messages    []string
	ThreadID    string
	Delay       time.Duration
	Prefixes    []string
	Suffixes    []string
}

// TaskInfo is a point-in-time view of a task.
type TaskInfo struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	Owner        string    `json:"owner"`
	State        TaskState `json:"state"`
	DelaySeconds int       `json:"delay_seconds"`
	Credentials  int       `json:"credentials"`
	Healthy      int       `json:"healthy"`
	Sent         int64     `json:"sent"`
	Loops        int       `json:"loops"`
	Index        int       `json:"index"`
	CreatedAt    time.Time `json:"created_at"`
}

type Stats struct {
	Uptime      time.Duration
	ActiveTasks int
	Delivered   int64
}
