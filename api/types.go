package api

import (
	"context"

	"github.com/adamwitko/retro/domain"
	"github.com/adamwitko/retro/hub"
)

// Storage abstracts the archive for handlers.
type Storage interface {
	EnqueueFrames(ctx context.Context, retroID domain.RetroID, frames [][]byte) error
	FetchRetros(ctx context.Context) ([]domain.Retro, error)
}

// Authenticator is implemented by types able to resolve session users from
// headers.
type Authenticator interface {
	UserFromAuthHeader(ctx context.Context, header string) (domain.UserID, error)
}

// SessionRevoker ends sessions on logout.
type SessionRevoker interface {
	RevokeAuthHeader(ctx context.Context, header string) error
}

// Broker fans frames out to connected clients on every instance.
type Broker interface {
	Publish(ctx context.Context, msg hub.Message) error
	Subscribe(retroID domain.RetroID, user domain.UserID) *hub.Subscription
	Unsubscribe(sub *hub.Subscription)
}
