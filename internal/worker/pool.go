package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type Job struct {
	Name string
	Fn   func(ctx context.Context)
}

// Pool runs submitted jobs on at most size goroutines.
type Pool struct {
	name string
	jobs chan Job
	sem  chan struct{}
	wg   sync.WaitGroup
}

func NewPool(name string, size, backlog int) *Pool {
	if size <= 0 {
		size = 1
	}
	if backlog <= 0 {
		backlog = 64
	}
	return &Pool{name: name, jobs: make(chan Job, backlog), sem: make(chan struct{}, size)}
}

// Submit queues a job without blocking the caller.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) {
	j := Job{Name: name, Fn: fn}
	select {
	case p.jobs <- j:
	default:
		log.Warn().Str("pool", p.name).Str("job", name).Msg("worker backlog full, queueing in background")
		go func() { p.jobs <- j }()
	}
}

// Run executes jobs until ctx is done, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) {
	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			p.wg.Add(1)
			go func(j Job) {
				defer p.wg.Done()
				defer func() { <-p.sem }()
				p.run(ctx, j)
			}(j)
		}
	}
}

func (p *Pool) run(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("pool", p.name).Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()
	j.Fn(ctx)
}
