package portalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/session"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// fakePortal mimics the portal's auth endpoints and one ticket route.
type fakePortal struct {
	mu         sync.Mutex
	valid      string
	issued     int
	expiresIn  int64
	refreshes  atomic.Int32
	logouts    atomic.Int32
	failLogout atomic.Bool
	rejectAll  atomic.Bool
	lastStatus dto.StatusRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, dto.ErrorEnvelope{Error: dto.ErrorBody{Code: code, Message: msg}})
}

func (p *fakePortal) issue() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	p.valid = fmt.Sprintf("access-%d", p.issued)
	return p.valid
}

func (p *fakePortal) authorized(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.rejectAll.Load() && r.Header.Get("Authorization") == "Bearer "+p.valid
}

func (p *fakePortal) status() dto.StatusRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStatus
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			writeErr(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid credentials")
			return
		}
		writeJSON(w, http.StatusOK, dto.Envelope[dto.LoginResponse]{Data: dto.LoginResponse{
			AccessToken:  p.issue(),
			RefreshToken: "refresh-1",
			ExpiresIn:    p.expiresIn,
			User:         dto.PrincipalSummary{ID: "u-1", Email: req.Email, Roles: []domain.Role{domain.RoleEmployee}},
		}})
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		p.refreshes.Add(1)
		var req dto.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "refresh-1" || r.Header.Get("Authorization") != "" {
			writeErr(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid refresh token")
			return
		}
		writeJSON(w, http.StatusOK, dto.Envelope[dto.RefreshResponse]{Data: dto.RefreshResponse{
			AccessToken: p.issue(),
			ExpiresIn:   900,
		}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		p.logouts.Add(1)
		if p.failLogout.Load() {
			writeErr(w, http.StatusInternalServerError, apperrors.CodeInternal, "down")
			return
		}
		writeJSON(w, http.StatusOK, dto.Envelope[dto.MessageResponse]{Data: dto.MessageResponse{Message: "logged out"}})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			writeErr(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "unauthorized")
			return
		}
		writeJSON(w, http.StatusOK, dto.Envelope[dto.PrincipalSummary]{Data: dto.PrincipalSummary{ID: "u-1", Name: "Erin"}})
	})
	mux.HandleFunc("POST /api/tickets/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			writeErr(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "unauthorized")
			return
		}
		var req dto.StatusRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		p.lastStatus = req
		p.mu.Unlock()
		if req.Version != nil && *req.Version != 3 {
			writeErr(w, http.StatusConflict, apperrors.CodeVersionConflict, "ticket was modified")
			return
		}
		writeJSON(w, http.StatusOK, dto.Envelope[dto.TicketResponse]{Data: dto.TicketResponse{
			ID: r.PathValue("id"), Status: req.Status, Version: 4,
		}})
	})
	return mux
}

func newClient(t *testing.T, p *fakePortal, storeOpts ...session.StoreOption) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	store := session.NewStore(logger, storeOpts...)
	c, err := New(srv.URL, store, WithLogger(logger))
	require.NoError(t, err)
	return c, store
}

func TestLoginInstallsCredential(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	c, store := newClient(t, p)

	user, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	cred, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Erin", me.Name)
	assert.Zero(t, p.refreshes.Load())
}

func TestLoginFailureIsDomainError(t *testing.T) {
	c, store := newClient(t, &fakePortal{expiresIn: 900})

	_, err := c.Login(context.Background(), "erin@corp.test", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestExpiringTokenIsRefreshedBeforeTheCall(t *testing.T) {
	p := &fakePortal{expiresIn: 1}
	c, store := newClient(t, p)

	_, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.refreshes.Load())

	cred, _ := store.Get()
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
}

func TestRejectedTokenIsRefreshedAndBodyReplayed(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	c, _ := newClient(t, p)

	_, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)
	// the server forgets the issued token, as after a signing key rotation
	p.issue()

	version := 3
	ticket, err := c.UpdateStatus(context.Background(), "t-1", dto.StatusRequest{
		Status: domain.TicketStatusWaiting, Note: "waiting on vendor", Version: &version,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, ticket.Status)
	assert.Equal(t, 4, ticket.Version)
	assert.Equal(t, int32(1), p.refreshes.Load())
	assert.Equal(t, "waiting on vendor", p.status().Note)
}

func TestDomainErrorsPassThrough(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	c, _ := newClient(t, p)
	_, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)

	stale := 1
	_, err = c.UpdateStatus(context.Background(), "t-1", dto.StatusRequest{
		Status: domain.TicketStatusWaiting, Note: "x", Version: &stale,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Zero(t, p.refreshes.Load())
}

func TestSecondRejectionEndsSession(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	c, store := newClient(t, p)
	_, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)
	p.rejectAll.Store(true)

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSessionExpired, apperrors.ToDomainError(err).Code)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestCallWithoutSessionFails(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	c, _ := newClient(t, p)

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSessionExpired, apperrors.ToDomainError(err).Code)
	assert.Zero(t, p.refreshes.Load())
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	p.failLogout.Store(true)
	file := session.NewTokenFile(filepath.Join(t.TempDir(), "session.yaml"))
	c, store := newClient(t, p, session.WithDurable(file))

	_, err := c.Login(context.Background(), "erin@corp.test", "pw")
	require.NoError(t, err)
	saved, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved)

	err = c.Logout(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), p.logouts.Load())

	_, ok := store.Get()
	assert.False(t, ok)
	saved, err = file.Load()
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestRestoredSessionRefreshesOnFirstCall(t *testing.T) {
	p := &fakePortal{expiresIn: 900}
	file := session.NewTokenFile(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, file.Save("refresh-1"))

	c, store := newClient(t, p, session.WithDurable(file))
	require.NoError(t, store.Initialize(context.Background()))

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.refreshes.Load())
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	store := session.NewStore(nil)
	_, err := New("ftp://portal", store)
	assert.Error(t, err)
	_, err = New("http://portal", nil)
	assert.Error(t, err)
}
