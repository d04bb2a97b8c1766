// Package fake provides a scripted in-memory remote client for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pulsecast/internal/domain"
	"pulsecast/internal/remote"
)

// Sent is one recorded delivery.
type Sent struct {
	Account     string
	Body        string
	Destination string
}

// Client answers every call successfully unless scripted otherwise.
// The account of a session is the credential that created it.
type Client struct {
	// BadCredentials fail Login.
	BadCredentials map[string]bool
	// NoAccess fail VerifyAccess, keyed by account.
	NoAccess map[string]bool
	// SendFails fail Send, keyed by account.
	SendFails map[string]bool
	// Latency is applied to every call.
	Latency time.Duration
	// LogSends writes each delivery to the global logger.
	LogSends bool

	mu     sync.Mutex
	sent   []Sent
	logins []string
}

type session string

func (s session) Account() string { return string(s) }

func (c *Client) Login(ctx context.Context, credential string) (remote.Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}
	c.mu.Lock()
	c.logins = append(c.logins, credential)
	bad := c.BadCredentials[credential]
	c.mu.Unlock()
	if bad {
		return nil, fmt.Errorf("%w: login refused", domain.ErrCredentialInvalid)
	}
	return session(credential), nil
}

func (c *Client) VerifyAccess(ctx context.Context, s remote.Session, destination string) error {
	if err := c.wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	c.mu.Lock()
	denied := c.NoAccess[s.Account()]
	c.mu.Unlock()
	if denied {
		return fmt.Errorf("%w: thread %s", domain.ErrAccessDenied, destination)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, s remote.Session, body, destination string) error {
	if err := c.wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendFails[s.Account()] {
		return fmt.Errorf("%w: scripted failure", domain.ErrDeliveryFailed)
	}
	c.sent = append(c.sent, Sent{Account: s.Account(), Body: body, Destination: destination})
	if c.LogSends {
		log.Info().Str("account", s.Account()).Str("thread_id", destination).Str("body", body).Msg("fake delivery")
	}
	return nil
}

// SetSendFails toggles send failures for an account while the client is in use.
func (c *Client) SetSendFails(account string, fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendFails == nil {
		c.SendFails = map[string]bool{}
	}
	c.SendFails[account] = fail
}

func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Client) Logins() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logins...)
}

func (c *Client) wait(ctx context.Context) error {
	if c.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
