// Package session keeps one valid access credential available to every
// concurrent caller of the portal API. It holds the credential store, the
// single-flight refresh coordinator and the http.RoundTripper pipeline that
// attaches, proactively refreshes and retries once on 401.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Credential is the current token pair. The access token lives in memory
// only; the refresh token is durable.
type Credential struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Empty reports whether c carries no tokens at all.
func (c Credential) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// RefreshTokenStore persists the refresh token across process restarts.
type RefreshTokenStore interface {
	Load() (string, error)
	Save(refreshToken string) error
	Delete() error
}

// Clock returns the current time.
type Clock func() time.Time

// Store is the process-wide credential holder. Set is the only mutator and
// swaps the whole credential under the write lock, so readers never see an
// access token paired with another token's expiry.
type Store struct {
	mu      sync.RWMutex
	cred    Credential
	durable RefreshTokenStore
	now     Clock
	logger  *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now.
func WithClock(clock Clock) StoreOption {
	return func(s *Store) { s.now = clock }
}

// WithDurable persists refresh tokens through d.
func WithDurable(d RefreshTokenStore) StoreOption {
	return func(s *Store) { s.durable = d }
}

// NewStore builds an empty store.
func NewStore(logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the durable refresh token. The access token is absent
// after a restart, so the first authenticated call triggers a refresh.
func (s *Store) Initialize(_ context.Context) error {
	if s.durable == nil {
		return nil
	}
	token, err := s.durable.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = Credential{RefreshToken: token}
	s.mu.Unlock()
	return nil
}

// Get returns the current credential, or false when the store is empty.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred.Empty() {
		return Credential{}, false
	}
	return s.cred, true
}

// Set installs cred. An empty refresh token keeps the previous one, since
// the refresh endpoint only returns a new access token.
func (s *Store) Set(cred Credential) {
	s.mu.Lock()
	if cred.RefreshToken == "" {
		cred.RefreshToken = s.cred.RefreshToken
	}
	changed := cred.RefreshToken != s.cred.RefreshToken
	s.cred = cred
	s.mu.Unlock()

	if changed && s.durable != nil {
		if err := s.durable.Save(cred.RefreshToken); err != nil {
			s.logger.Warn("persist refresh token failed", zap.Error(err))
		}
	}
}

// Clear empties the store and drops the durable copy.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cred = Credential{}
	s.mu.Unlock()

	if s.durable != nil {
		if err := s.durable.Delete(); err != nil {
			s.logger.Warn("delete refresh token failed", zap.Error(err))
		}
	}
}

// IsExpiringWithin reports whether the access token is missing or expires
// within threshold.
func (s *Store) IsExpiringWithin(threshold time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expiringWithin(s.cred, s.now(), threshold)
}

func expiringWithin(cred Credential, now time.Time, threshold time.Duration) bool {
	if cred.AccessToken == "" {
		return true
	}
	return !now.Add(threshold).Before(cred.AccessExpiresAt)
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}
