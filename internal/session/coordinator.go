package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// Refresher exchanges a refresh token for a new credential. Implementations
// must not route through the authenticated pipeline.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credential, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Credential, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	return f(ctx, refreshToken)
}

type policyKind int

const (
	proactive policyKind = iota
	reactive
)

// Policy says when EnsureFresh should hit the network.
type Policy struct {
	kind      policyKind
	threshold time.Duration
	rejected  string
}

// Proactive refreshes when the access token expires within threshold.
func Proactive(threshold time.Duration) Policy {
	return Policy{kind: proactive, threshold: threshold}
}

// Reactive refreshes after the server rejected rejectedAccessToken. When the
// store already holds a different access token, another caller refreshed in
// the meantime and that token is returned as is.
func Reactive(rejectedAccessToken string) Policy {
	return Policy{kind: reactive, rejected: rejectedAccessToken}
}

func (p Policy) needsRefresh(cred Credential, now time.Time) bool {
	switch p.kind {
	case reactive:
		return cred.AccessToken == "" || cred.AccessToken == p.rejected
	default:
		return expiringWithin(cred, now, p.threshold)
	}
}

type flight struct {
	done chan struct{}
	cred Credential
	err  error
}

// Coordinator turns concurrent refresh demands into one network call.
type Coordinator struct {
	store     *Store
	refresher Refresher
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	inflight *flight
}

// NewCoordinator wires a coordinator over store. A non-positive timeout uses
// DefaultRefreshTimeout.
func NewCoordinator(store *Store, refresher Refresher, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, refresher: refresher, timeout: timeout, logger: logger}
}

// EnsureFresh returns a usable credential, refreshing first when policy
// asks for it. While a refresh is in flight every caller waits for it and
// receives its outcome. A failed refresh clears the store and yields
// SESSION_EXPIRED for all of them.
//
// A caller whose ctx ends stops waiting and gets ctx.Err(); the flight still
// completes for everyone else.
func (c *Coordinator) EnsureFresh(ctx context.Context, policy Policy) (Credential, error) {
	c.mu.Lock()
	f := c.inflight
	if f == nil {
		cred, _ := c.store.Get()
		if !policy.needsRefresh(cred, c.store.Now()) {
			c.mu.Unlock()
			return cred, nil
		}
		if cred.RefreshToken == "" {
			c.mu.Unlock()
			c.store.Clear()
			return Credential{}, apperrors.NewSessionExpired(errors.New("no refresh token"))
		}
		f = &flight{done: make(chan struct{})}
		c.inflight = f
		go c.run(context.WithoutCancel(ctx), f, cred.RefreshToken)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.cred, f.err
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

// InFlight reports whether a refresh call is outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

func (c *Coordinator) run(ctx context.Context, f *flight, refreshToken string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	c.logger.Debug("refreshing access token")

	cred, err := c.refresher.Refresh(ctx, refreshToken)
	if err == nil && cred.AccessToken == "" {
		err = errors.New("refresh returned no access token")
	}

	if err != nil {
		c.logger.Warn("token refresh failed, session cleared",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(started)),
		)
		c.store.Clear()
		f.err = apperrors.NewSessionExpired(err)
	} else {
		if cred.RefreshToken == "" {
			cred.RefreshToken = refreshToken
		}
		c.store.Set(cred)
		f.cred = cred
		c.logger.Debug("access token refreshed",
			zap.Time("expires_at", cred.AccessExpiresAt),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)
}
