// Package scheduler owns task lifecycles: session bootstrap, the recurring
// delivery tick and teardown.
package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"pulsecast/internal/dispatch"
	"pulsecast/internal/domain"
	"pulsecast/internal/journal"
	"pulsecast/internal/registry"
	"pulsecast/internal/remote"
	"pulsecast/internal/sequencer"
	"pulsecast/internal/session"
	"pulsecast/internal/worker"
)

const (
	ReasonNoHealthy  = "No valid cookies found"
	ReasonUser       = "Stopped by user"
	ReasonDisconnect = "Client disconnected"
	ReasonShutdown   = "Server shutting down"
)

var threadIDPattern = regexp.MustCompile(`^\d+$`)

type Config struct {
	DefaultDelay time.Duration
	MaxDelay     time.Duration
	Workers      int
}

type Service struct {
	cfg        Config
	client     remote.Client
	cron       *cron.Cron
	reg        *registry.Registry[*Task]
	bootstraps *worker.Pool
	intents    *worker.Pool
	journal    journal.Recorder
	newRand    func() sequencer.Rand
	newID      func() string
	now        func() time.Time
}

type Option func(*Service)

func WithJournal(j journal.Recorder) Option { return func(s *Service) { s.journal = j } }

// WithRand sets the name picker used by each new task.
func WithRand(fn func() sequencer.Rand) Option { return func(s *Service) { s.newRand = fn } }

func NewService(client remote.Client, cfg Config, opts ...Option) *Service {
	if cfg.DefaultDelay < time.Second {
		cfg.DefaultDelay = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	logger := cronLogger{l: log.Logger.With().Str("component", "cron").Logger()}
	s := &Service{
		cfg:    cfg,
		client: client,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
		reg:        registry.New[*Task](),
		bootstraps: worker.NewPool("bootstrap", cfg.Workers, 256),
		intents:    worker.NewPool("teardown", 1, 256),
		journal:    journal.Nop{},
		newID:      func() string { return "tsk_" + uuid.NewString() },
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drives the timers and worker pools until ctx is done, then stops every task.
func (s *Service) Run(ctx context.Context) {
	s.cron.Start()
	go s.bootstraps.Run(ctx)
	go s.intents.Run(ctx)
	log.Info().Int("workers", s.cfg.Workers).Msg("task scheduler started")

	<-ctx.Done()
	n := s.StopAll(ReasonShutdown)
	<-s.cron.Stop().Done()
	log.Info().Int("stopped", n).Msg("task scheduler stopped")
}

// Start validates req, registers a task and queues its session bootstrap.
// The returned id is valid immediately; task_started follows once a session is healthy.
func (s *Service) Start(req domain.StartRequest, owner string, emit domain.Emitter) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if emit == nil {
		emit = domain.EmitterFunc(func(domain.Event) {})
	}

	opts := []sequencer.Option{}
	if s.newRand != nil {
		opts = append(opts, sequencer.WithRand(s.newRand()))
	}
	t := &Task{
		id:          s.newID(),
		owner:       owner,
		threadID:    req.ThreadID,
		delay:       s.normalizeDelay(req.Delay),
		credentials: req.Credentials,
		createdAt:   s.now(),
		emit:        emit,
		state:       domain.TaskCreated,
	}
	opts = append(opts, sequencer.OnWrap(func(loop int) { t.logf("Loop %d started", loop) }))
	seq, err := sequencer.New(req.Messages, req.Prefixes, req.Suffixes, opts...)
	if err != nil {
		return "", err
	}
	t.seq = seq
	t.pool = session.New(s.client, t.logf, func(b session.Breach) { s.breach(t, b) })
	t.dispatch = dispatch.New(t.pool, s.client, t.logf)
	t.ctx, t.cancel = context.WithCancel(context.Background())

	if err := s.reg.Create(t.id, t); err != nil {
		t.cancel()
		return "", err
	}
	s.record("task started", s.journal.TaskStarted(context.Background(), journal.Run{
		TaskID:       t.id,
		ThreadID:     t.threadID,
		Owner:        owner,
		DelaySeconds: int(t.delay / time.Second),
		Credentials:  len(t.credentials),
		StartedAt:    t.createdAt,
	}))

	t.logf("Created for thread %s: %d cookies, %d messages, every %s",
		t.threadID, len(req.Credentials), len(req.Messages), t.delay)
	s.bootstraps.Submit("bootstrap "+t.id, func(context.Context) { s.bootstrap(t) })
	return t.id, nil
}

func (s *Service) bootstrap(t *Task) {
	if !t.transition(domain.TaskCreated, domain.TaskBootstrapping) {
		return
	}
	t.logf("Checking %d cookies", len(t.credentials))
	healthy := t.pool.Bootstrap(t.ctx, t.credentials, t.threadID)
	s.record("task healthy", s.journal.TaskHealthy(context.Background(), t.id, healthy))

	switch {
	case t.ctx.Err() != nil, t.pool.Breached():
		// Already stopped, or a teardown intent is queued.
		return
	case healthy == 0:
		log.Warn().Err(domain.ErrInsufficientHealthy).Str("task_id", t.id).Msg("bootstrap produced no sessions")
		s.Stop(t.id, ReasonNoHealthy)
		return
	}
	s.schedule(t, healthy)
}

func (s *Service) schedule(t *Task, healthy int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TaskBootstrapping {
		return
	}
	t.entry = s.cron.Schedule(cron.Every(t.delay), cron.FuncJob(func() { s.tick(t) }))
	t.scheduled = true
	t.state = domain.TaskRunning
	t.logf("Running with %d of %d cookies, sending every %s", healthy, len(t.credentials), t.delay)
	t.emit.Emit(domain.Event{Type: domain.EventTaskStarted, TaskID: t.id})
}

// breach posts the teardown instead of running it inside the bootstrap walk.
func (s *Service) breach(t *Task, b session.Breach) {
	log.Warn().Err(b.Err()).Str("task_id", t.id).Msg("unhealthy session threshold reached")
	reason := b.Reason()
	s.intents.Submit("teardown "+t.id, func(context.Context) { s.Stop(t.id, reason) })
}

// tick runs one compose-and-deliver cycle. cron never overlaps ticks of one task.
func (s *Service) tick(t *Task) {
	if t.ctx.Err() != nil {
		return
	}
	body := t.seq.Next()
	idx, loops := t.seq.Position()

	// An in-flight delivery is allowed to finish after the task stops.
	res := t.dispatch.Send(context.WithoutCancel(t.ctx), body, t.threadID)
	d := journal.Delivery{TaskID: t.id, Account: res.Account, Loop: loops, MessageIndex: idx, Success: res.Delivered, At: s.now()}
	if !res.Delivered {
		d.Error = fmt.Sprintf("%v after %d attempts", domain.ErrDeliveryFailed, res.Attempts)
		s.record("delivery", s.journal.Delivery(context.Background(), d))
		return
	}
	t.seq.Advance()
	t.sent.Add(1)
	s.reg.RecordDelivery()
	s.record("delivery", s.journal.Delivery(context.Background(), d))
}

// Stop tears a task down. Unknown or already stopped ids are a no-op returning false.
func (s *Service) Stop(id, reason string) bool {
	t, ok := s.reg.Remove(id)
	if !ok {
		return false
	}
	if !t.halt(s.cron) {
		return false
	}
	t.logf("Stopped: %s (%d sent)", reason, t.sent.Load())
	t.emit.Emit(domain.Event{Type: domain.EventStopped, TaskID: id, Reason: reason})
	s.record("task stopped", s.journal.TaskStopped(context.Background(), id, reason, t.sent.Load(), s.now()))
	return true
}

// StopOwnedBy stops every task started by owner.
func (s *Service) StopOwnedBy(owner, reason string) int {
	n := 0
	for _, t := range s.reg.List() {
		if t.owner == owner && s.Stop(t.id, reason) {
			n++
		}
	}
	return n
}

func (s *Service) StopAll(reason string) int {
	n := 0
	for _, t := range s.reg.List() {
		if s.Stop(t.id, reason) {
			n++
		}
	}
	return n
}

func (s *Service) Task(id string) (domain.TaskInfo, bool) {
	t, ok := s.reg.Get(id)
	if !ok {
		return domain.TaskInfo{}, false
	}
	return t.Info(), true
}

func (s *Service) Tasks() []domain.TaskInfo {
	tasks := s.reg.List()
	out := make([]domain.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Info())
	}
	return out
}

func (s *Service) Stats() domain.Stats { return s.reg.Stats() }

func (s *Service) History(ctx context.Context, limit int) ([]journal.Run, error) {
	return s.journal.Recent(ctx, limit)
}

func (s *Service) normalizeDelay(d time.Duration) time.Duration {
	d = d.Truncate(time.Second)
	if d < time.Second {
		return s.cfg.DefaultDelay
	}
	if s.cfg.MaxDelay > 0 && d > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return d
}

func (s *Service) record(what string, err error) {
	if err != nil {
		log.Error().Err(err).Str("entry", what).Msg("failed to write journal")
	}
}

func validate(req domain.StartRequest) error {
	switch {
	case !threadIDPattern.MatchString(req.ThreadID):
		return fmt.Errorf("%w: thread ID must contain only digits", domain.ErrInputInvalid)
	case len(req.Credentials) == 0:
		return fmt.Errorf("%w: no cookies provided", domain.ErrInputInvalid)
	case len(req.Messages) == 0:
		return fmt.Errorf("%w: no messages provided", domain.ErrInputInvalid)
	case len(req.Prefixes) == 0 || len(req.Suffixes) == 0:
		return fmt.Errorf("%w: name lists must not be empty", domain.ErrInputInvalid)
	}
	return nil
}
