// Package session builds and tracks the per-task pool of remote sessions.
package session

import (
	"context"
	"fmt"
	"sync"

	"pulsecast/internal/domain"
	"pulsecast/internal/remote"
)

// Entry is one credential's slot in the pool. Handle is set only when Healthy.
type Entry struct {
	Index   int
	Handle  remote.Session
	Healthy bool
}

// Breach describes the moment the unhealthy count reached the threshold.
type Breach struct {
	Unhealthy int
	Total     int
	Healthy   int
}

func (b Breach) Reason() string {
	return fmt.Sprintf("Most cookies failed: %d of %d unusable", b.Unhealthy, b.Total)
}

func (b Breach) Err() error {
	return fmt.Errorf("%w: %d of %d", domain.ErrHealthThresholdBreached, b.Unhealthy, b.Total)
}

// Threshold is the unhealthy count that stops a task: max(1, floor(0.75*n)).
func Threshold(n int) int {
	t := n * 3 / 4
	if t < 1 {
		t = 1
	}
	return t
}

type Pool struct {
	client   remote.Client
	logf     func(format string, args ...any)
	onBreach func(Breach)

	mu        sync.RWMutex
	entries   []Entry
	order     []int
	total     int
	unhealthy int
	breached  bool
}

// New returns an empty pool. onBreach is called at most once, synchronously from
// Bootstrap, and must only post work elsewhere.
func New(client remote.Client, logf func(string, ...any), onBreach func(Breach)) *Pool {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if onBreach == nil {
		onBreach = func(Breach) {}
	}
	return &Pool{client: client, logf: logf, onBreach: onBreach}
}

// Bootstrap logs in every credential in order and verifies access to the
// destination. It returns the number of healthy sessions. A cancelled context
// ends the walk early.
func (p *Pool) Bootstrap(ctx context.Context, credentials []string, destination string) int {
	p.mu.Lock()
	p.total = len(credentials)
	p.entries = make([]Entry, len(credentials))
	for i := range p.entries {
		p.entries[i].Index = i
	}
	p.mu.Unlock()

	for i, cred := range credentials {
		if ctx.Err() != nil {
			break
		}
		n := i + 1

		s, err := p.client.Login(ctx, cred)
		if err != nil {
			p.logf("Cookie #%d login failed: %v", n, err)
			p.fail()
			continue
		}
		if err := p.client.VerifyAccess(ctx, s, destination); err != nil {
			p.logf("Cookie #%d (%s) cannot access thread %s: %v", n, s.Account(), destination, err)
			p.fail()
			continue
		}

		p.mu.Lock()
		p.entries[i] = Entry{Index: i, Handle: s, Healthy: true}
		p.order = append(p.order, i)
		p.mu.Unlock()
		p.logf("Cookie #%d ready (%s)", n, s.Account())
	}
	return p.HealthyCount()
}

func (p *Pool) fail() {
	p.mu.Lock()
	p.unhealthy++
	var b *Breach
	if !p.breached && p.unhealthy >= Threshold(p.total) {
		p.breached = true
		b = &Breach{Unhealthy: p.unhealthy, Total: p.total, Healthy: len(p.order)}
	}
	p.mu.Unlock()
	if b != nil {
		p.onBreach(*b)
	}
}

// Healthy returns the usable entries in credential order.
func (p *Pool) Healthy() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.order))
	for _, i := range p.order {
		out = append(out, p.entries[i])
	}
	return out
}

func (p *Pool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

func (p *Pool) UnhealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unhealthy
}

func (p *Pool) Breached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.breached
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}
