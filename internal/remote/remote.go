// Package remote defines the boundary to the messaging service that owns
// sessions, destinations and delivery.
package remote

import "context"

// Session is an authenticated handle produced by Login. Implementations are
// opaque to the rest of the system.
type Session interface {
	// Account names the identity behind the session, for logs only.
	Account() string
}

type Client interface {
	Login(ctx context.Context, credential string) (Session, error)
	VerifyAccess(ctx context.Context, s Session, destination string) error
	Send(ctx context.Context, s Session, body, destination string) error
}
