package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"pulsecast/internal/dispatch"
	"pulsecast/internal/domain"
	"pulsecast/internal/sequencer"
	"pulsecast/internal/session"
)

// Task is one delivery campaign. Its pool and sequencer are touched only by
// its own bootstrap and ticks.
type Task struct {
	id          string
	owner       string
	threadID    string
	delay       time.Duration
	credentials []string
	createdAt   time.Time
	emit        domain.Emitter

	pool     *session.Pool
	seq      *sequencer.Sequencer
	dispatch *dispatch.Strategy
	sent     atomic.Int64

	// ctx is cancelled when the task stops; it is the only signal ticks obey.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.TaskState
	entry     cron.EntryID
	scheduled bool
}

func (t *Task) ID() string { return t.id }

func (t *Task) Owner() string { return t.owner }

func (t *Task) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Info() domain.TaskInfo {
	idx, loops := t.seq.Position()
	return domain.TaskInfo{
		ID:           t.id,
		ThreadID:     t.threadID,
		Owner:        t.owner,
		State:        t.State(),
		DelaySeconds: int(t.delay / time.Second),
		Credentials:  len(t.credentials),
		Healthy:      t.pool.HealthyCount(),
		Sent:         t.sent.Load(),
		Loops:        loops,
		Index:        idx,
		CreatedAt:    t.createdAt,
	}
}

// logf writes a task-scoped line to the process log and the owning connection.
func (t *Task) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Info().Str("task_id", t.id).Msg(msg)
	t.emit.Emit(domain.LogEvent(fmt.Sprintf("[Task %s] %s", t.id, msg)))
}

// transition moves from one state to another and reports whether it happened.
func (t *Task) transition(from, to domain.TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	t.state = to
	return true
}

// halt marks the task stopped, cancels its context and unschedules it.
// It returns false when the task was already stopped.
func (t *Task) halt(c *cron.Cron) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == domain.TaskStopped {
		return false
	}
	t.state = domain.TaskStopped
	t.cancel()
	if t.scheduled {
		c.Remove(t.entry)
		t.scheduled = false
	}
	return true
}
