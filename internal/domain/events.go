package domain

type EventType string

const (
	EventLog         EventType = "log"
	EventTaskStarted EventType = "task_started"
	EventStopped     EventType = "stopped"
	EventMonitorData EventType = "monitor_data"
)

// Event is an outbound control-channel message.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	TaskID  string    `json:"taskId,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	*Monitor
}

type Monitor struct {
	Uptime      int64 `json:"uptime"`
	ActiveTasks int   `json:"activeTasks"`
	TotalSent   int64 `json:"totalMessagesSent"`
}

// Emitter receives events for a single control connection. Emit must not block.
type Emitter interface {
	Emit(Event)
}

type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

func LogEvent(msg string) Event { return Event{Type: EventLog, Message: msg} }

func MonitorEvent(s Stats) Event {
	return Event{Type: EventMonitorData, Monitor: &Monitor{
		Uptime:      int64(s.Uptime.Seconds()),
		ActiveTasks: s.ActiveTasks,
		TotalSent:   s.Delivered,
	}}
}
