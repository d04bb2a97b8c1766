// Package dispatch delivers a message through the first session that accepts it.
package dispatch

import (
	"context"

	"pulsecast/internal/remote"
	"pulsecast/internal/session"
)

// Sessions is the view of a session pool that dispatch needs.
type Sessions interface {
	Healthy() []session.Entry
}

// Result reports which session delivered a message.
type Result struct {
	Delivered bool
	Index     int
	Account   string
	Attempts  int
}

type Strategy struct {
	sessions Sessions
	client   remote.Client
	logf     func(format string, args ...any)
}

func New(sessions Sessions, client remote.Client, logf func(string, ...any)) *Strategy {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Strategy{sessions: sessions, client: client, logf: logf}
}

// Send tries healthy sessions in credential order and stops at the first success.
func (s *Strategy) Send(ctx context.Context, body, destination string) Result {
	res := Result{Index: -1}
	for _, e := range s.sessions.Healthy() {
		res.Attempts++
		if err := s.client.Send(ctx, e.Handle, body, destination); err != nil {
			s.logf("Cookie #%d failed to send: %v", e.Index+1, err)
			continue
		}
		res.Delivered = true
		res.Index = e.Index
		res.Account = e.Handle.Account()
		s.logf("Sent via cookie #%d: %s", e.Index+1, body)
		return res
	}
	return res
}
