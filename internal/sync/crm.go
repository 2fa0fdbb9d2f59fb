package sync

import (
	"context"

	"bookingsync/internal/remonline"
)

// CRMAPI is the slice of the Remonline client the outbound workflow uses.
type CRMAPI interface {
	ListClients(ctx context.Context, token string, page int) ([]remonline.Client, error)
	CreateClient(ctx context.Context, token string, client remonline.NewClient) (int64, error)
	CreateOrder(ctx context.Context, token string, order remonline.NewOrder) (int64, error)
}

// TokenSource hands out and refreshes the CRM bearer token. Satisfied by
// *credentials.Manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Locker serializes concurrent synchronization attempts per appointment.
// Satisfied by *lock.Locker.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// withToken runs fn with a valid bearer token. A 401 triggers exactly one
// refresh-and-retry of the original call before the failure surfaces.
func withToken(ctx context.Context, tokens TokenSource, fn func(token string) error) error {
	token, err := tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = fn(token)
	if !remonline.IsUnauthorized(err) {
		return err
	}

	token, refreshErr := tokens.Refresh(ctx)
	if refreshErr != nil {
		return refreshErr
	}
	return fn(token)
}
