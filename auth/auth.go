// Package auth implements refresh token rotation and access token
// revocation on top of a tokenstore.Store.
//
// Tokens themselves are issued and verified elsewhere; this package only
// tracks which refresh tokens are live and which access tokens were revoked
// before their natural expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/parkerroan/authgate/tokenstore"
	"golang.org/x/exp/slog"
)

var (
	// ErrRevoked is returned by Authorize for a blacklisted access token.
	ErrRevoked = errors.New("access token revoked")
	// ErrUnknownRefreshToken is returned when a refresh token is absent or expired.
	ErrUnknownRefreshToken = errors.New("unknown refresh token")
	// ErrInvalidPrincipal is returned for a stored payload that is not "subject:role".
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// Principal is the identity a refresh token was issued to.
type Principal struct {
	Subject string
	Role    string
}

// Encode renders the principal as the stored refresh token payload.
func (p Principal) Encode() string {
	return p.Subject + ":" + p.Role
}

// ParsePrincipal reverses Encode. The role is everything after the last colon.
func ParsePrincipal(payload string) (Principal, error) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 || i == len(payload)-1 {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, payload)
	}
	return Principal{Subject: payload[:i], Role: payload[i+1:]}, nil
}

// AccessToken identifies a presented access token.
type AccessToken struct {
	JTI       string
	ExpiresAt time.Time
}

// Service rotates refresh tokens and revokes access tokens.
type Service struct {
	store tokenstore.Store
	now   func() time.Time
}

// NewService creates a Service over store.
func NewService(store tokenstore.Store, opts ...func(*Service)) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithClock overrides the time source used for remaining token lifetimes.
func WithClock(now func() time.Time) func(*Service) {
	return func(s *Service) {
		s.now = now
	}
}

// IssueRefresh records a new refresh token for p.
func (s *Service) IssueRefresh(ctx context.Context, jti string, p Principal, ttl time.Duration) error {
	return s.store.SaveRefreshToken(ctx, jti, p.Encode(), ttl)
}

// Rotate exchanges oldJTI for newJTI and revokes the access token presented
// alongside it. The new refresh token carries the old one's principal.
// The old token is consumed atomically, so concurrent rotations of the same
// jti yield a single new session.
func (s *Service) Rotate(ctx context.Context, oldJTI, newJTI string, ttl time.Duration, access AccessToken) (Principal, error) {
	payload, found, err := s.store.TakeRefreshToken(ctx, oldJTI)
	if err != nil {
		return Principal{}, err
	}
	if !found {
		return Principal{}, ErrUnknownRefreshToken
	}

	p, err := ParsePrincipal(payload)
	if err != nil {
		return Principal{}, err
	}

	if err := s.store.SaveRefreshToken(ctx, newJTI, p.Encode(), ttl); err != nil {
		return Principal{}, err
	}
	if err := s.revokeAccess(ctx, access); err != nil {
		return Principal{}, err
	}

	slog.Info("refresh token rotated", slog.String("subject", p.Subject))
	return p, nil
}

// Logout drops the refresh token and revokes the access token.
func (s *Service) Logout(ctx context.Context, refreshJTI string, access AccessToken) error {
	if err := s.store.DeleteRefreshToken(ctx, refreshJTI); err != nil {
		return err
	}
	return s.revokeAccess(ctx, access)
}

// Authorize returns ErrRevoked for a blacklisted access token. Store
// failures are returned as is and must be treated as a denial.
func (s *Service) Authorize(ctx context.Context, accessJTI string) error {
	revoked, err := s.store.IsBlacklisted(ctx, accessJTI)
	if err != nil {
		return err
	}
	if revoked {
		return ErrRevoked
	}
	return nil
}

// revokeAccess blacklists the token for the rest of its life, rounded up to
// whole seconds. Tokens already expired are skipped.
func (s *Service) revokeAccess(ctx context.Context, access AccessToken) error {
	if access.JTI == "" {
		return nil
	}
	remaining := access.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	ttl := time.Duration(math.Ceil(remaining.Seconds())) * time.Second
	return s.store.AddToBlacklist(ctx, access.JTI, ttl)
}
