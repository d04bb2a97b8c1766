// Package sequencer walks an ordered message list and decorates each message
// with randomly chosen names.
package sequencer

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"pulsecast/internal/domain"
)

const separator = " "

// Rand picks an index in [0, n).
type Rand interface {
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int { return rand.Intn(n) }

type Sequencer struct {
	messages []string
	prefixes []string
	suffixes []string
	rnd      Rand
	onWrap   func(loop int)

	mu    sync.Mutex
	index int
	loops int
}

type Option func(*Sequencer)

// WithRand replaces the name picker.
func WithRand(r Rand) Option { return func(s *Sequencer) { s.rnd = r } }

// OnWrap is called with the new loop count every time the list restarts.
func OnWrap(fn func(loop int)) Option { return func(s *Sequencer) { s.onWrap = fn } }

func New(messages, prefixes, suffixes []string, opts ...Option) (*Sequencer, error) {
	switch {
	case len(messages) == 0:
		return nil, fmt.Errorf("%w: message list is empty", domain.ErrInputInvalid)
	case len(prefixes) == 0:
		return nil, fmt.Errorf("%w: prefix name list is empty", domain.ErrInputInvalid)
	case len(suffixes) == 0:
		return nil, fmt.Errorf("%w: suffix name list is empty", domain.ErrInputInvalid)
	}
	s := &Sequencer{
		messages: messages,
		prefixes: prefixes,
		suffixes: suffixes,
		rnd:      defaultRand{},
		onWrap:   func(int) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Next composes the current message. When the list is exhausted it restarts
// from the first message and bumps the loop count before composing.
func (s *Sequencer) Next() string {
	s.mu.Lock()
	wrapped := false
	if s.index >= len(s.messages) {
		s.index = 0
		s.loops++
		wrapped = true
	}
	body := s.messages[s.index]
	loops := s.loops
	s.mu.Unlock()

	if wrapped {
		s.onWrap(loops)
	}
	prefix := s.prefixes[s.rnd.IntN(len(s.prefixes))]
	suffix := s.suffixes[s.rnd.IntN(len(s.suffixes))]
	return strings.Join([]string{prefix, body, suffix}, separator)
}

// Advance moves past the current message. Call it only after a delivery.
func (s *Sequencer) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index++
}

// Position returns the current index and loop count.
func (s *Sequencer) Position() (index, loops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.loops
}
