package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// DefaultProactiveThreshold is how close to expiry a token may get before a
// call refreshes it first.
const DefaultProactiveThreshold = 60 * time.Second

type noAuthKey struct{}

// WithoutAuth marks requests that must skip the pipeline. Login and refresh
// use it so refreshing never recurses.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, noAuthKey{}, true)
}

func skipAuth(ctx context.Context) bool {
	v, _ := ctx.Value(noAuthKey{}).(bool)
	return v
}

// attempt records which access token a call was sent with, so a 401 can be
// matched against the token the server actually rejected.
type attempt struct {
	accessToken string
}

type attemptKey struct{}

func attemptFrom(ctx context.Context) *attempt {
	a, _ := ctx.Value(attemptKey{}).(*attempt)
	return a
}

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Stage wraps the next round tripper.
type Stage func(next http.RoundTripper) http.RoundTripper

// Chain applies stages so that the first one is outermost.
func Chain(base http.RoundTripper, stages ...Stage) http.RoundTripper {
	rt := base
	for i := len(stages) - 1; i >= 0; i-- {
		rt = stages[i](rt)
	}
	return rt
}

// Pipeline groups the stages around one store and coordinator.
type Pipeline struct {
	store     *Store
	coord     *Coordinator
	threshold time.Duration
	logger    *zap.Logger
}

// NewPipeline builds a pipeline. A non-positive threshold uses
// DefaultProactiveThreshold.
func NewPipeline(store *Store, coord *Coordinator, threshold time.Duration, logger *zap.Logger) *Pipeline {
	if threshold <= 0 {
		threshold = DefaultProactiveThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, coord: coord, threshold: threshold, logger: logger}
}

// Transport returns base wrapped as retryOnce -> proactiveRefresh ->
// attachCredential. Requests marked WithoutAuth go straight to base.
func (p *Pipeline) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	authed := Chain(base, p.RetryOnce, p.ProactiveRefresh, p.AttachCredential)
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if skipAuth(req.Context()) {
			return base.RoundTrip(req)
		}
		return authed.RoundTrip(req)
	})
}

// NewTransport is shorthand for NewPipeline(...).Transport(base).
func NewTransport(base http.RoundTripper, store *Store, coord *Coordinator, threshold time.Duration, logger *zap.Logger) http.RoundTripper {
	return NewPipeline(store, coord, threshold, logger).Transport(base)
}

// ProactiveRefresh refreshes before the call when the token is about to
// expire.
func (p *Pipeline) ProactiveRefresh(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if p.store.IsExpiringWithin(p.threshold) {
			if _, err := p.coord.EnsureFresh(req.Context(), Proactive(p.threshold)); err != nil {
				return nil, err
			}
		}
		return next.RoundTrip(req)
	})
}

// AttachCredential sets the bearer header on a clone of the request.
func (p *Pipeline) AttachCredential(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		cred, _ := p.store.Get()
		if a := attemptFrom(req.Context()); a != nil {
			a.accessToken = cred.AccessToken
		}
		out := req.Clone(req.Context())
		if cred.AccessToken != "" {
			out.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		}
		return next.RoundTrip(out)
	})
}

// RetryOnce handles a 401 by refreshing reactively and retrying exactly once.
// A second 401 ends the session. 403 and every other status pass through.
func (p *Pipeline) RetryOnce(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		first := &attempt{}
		ctx := context.WithValue(req.Context(), attemptKey{}, first)

		resp, err := next.RoundTrip(req.WithContext(ctx))
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}
		discard(resp)

		if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
			return nil, apperrors.NewSessionExpired(errors.New("request body cannot be replayed after refresh"))
		}

		if _, err := p.coord.EnsureFresh(req.Context(), Reactive(first.accessToken)); err != nil {
			return nil, err
		}

		retry, err := rewind(context.WithValue(req.Context(), attemptKey{}, &attempt{}), req)
		if err != nil {
			return nil, err
		}
		resp, err = next.RoundTrip(retry)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			p.logger.Warn("request rejected after refresh, session cleared",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			p.store.Clear()
			return nil, apperrors.NewSessionExpired(errors.New("retry after refresh was unauthorized"))
		}
		return resp, nil
	})
}

func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return out, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
