package tokenstore

import (
	"context"
	"time"
)

// InertStore accepts every write and remembers nothing: refresh tokens are
// always absent and nothing is ever blacklisted. It exists for environments
// without a backing store; in a real deployment it disables revocation.
type InertStore struct{}

var _ Store = InertStore{}

func (InertStore) SaveRefreshToken(context.Context, string, string, time.Duration) error {
	return nil
}

func (InertStore) GetRefreshToken(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (InertStore) TakeRefreshToken(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (InertStore) DeleteRefreshToken(context.Context, string) error {
	return nil
}

func (InertStore) AddToBlacklist(context.Context, string, time.Duration) error {
	return nil
}

func (InertStore) IsBlacklisted(context.Context, string) (bool, error) {
	return false, nil
}
