// Package portalclient is a typed client for the ticket portal API. Every
// authenticated call goes through the session pipeline, so callers never
// deal with bearer headers, expiry or refresh.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-portal/internal/api/dto"
	"github.com/spec-kit/itsm-portal/internal/domain"
	"github.com/spec-kit/itsm-portal/internal/session"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// Client talks to one portal instance on behalf of one session.
type Client struct {
	baseURL        *url.URL
	base           http.RoundTripper
	httpClient     *http.Client
	store          *session.Store
	coord          *session.Coordinator
	threshold      time.Duration
	refreshTimeout time.Duration
	timeout        time.Duration
	logger         *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPTransport replaces the network transport under the pipeline.
func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithLogger sets the logger used by the pipeline and the coordinator.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithProactiveThreshold sets how close to expiry a token may get before a
// call refreshes it first.
func WithProactiveThreshold(d time.Duration) Option {
	return func(c *Client) { c.threshold = d }
}

// WithRefreshTimeout bounds a single refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// WithTimeout bounds one API call, retry included. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New builds a client for baseURL backed by store.
func New(baseURL string, store *session.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("portalclient: store is required")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("portalclient: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("portalclient: unsupported scheme %q", u.Scheme)
	}

	c := &Client{baseURL: u, store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	c.coord = session.NewCoordinator(store, c, c.refreshTimeout, c.logger.Named("refresh"))
	c.httpClient = &http.Client{
		Transport: session.NewTransport(c.base, store, c.coord, c.threshold, c.logger.Named("pipeline")),
	}
	return c, nil
}

// Store exposes the credential store behind the client.
func (c *Client) Store() *session.Store { return c.store }

// Login exchanges credentials for a token pair and installs it.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.PrincipalSummary, error) {
	var out dto.LoginResponse
	started := c.store.Now()
	err := c.do(session.WithoutAuth(ctx), http.MethodPost, "/api/auth/login", nil,
		dto.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.store.Set(session.Credential{
		AccessToken:     out.AccessToken,
		AccessExpiresAt: started.Add(time.Duration(out.ExpiresIn) * time.Second),
		RefreshToken:    out.RefreshToken,
	})
	return &out.User, nil
}

// Refresh implements session.Refresher. It bypasses the pipeline and keeps
// the refresh token, which the server does not rotate.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.Credential, error) {
	var out dto.RefreshResponse
	started := c.store.Now()
	err := c.do(session.WithoutAuth(ctx), http.MethodPost, "/api/auth/refresh", nil,
		dto.RefreshRequest{RefreshToken: refreshToken}, &out)
	if err != nil {
		return session.Credential{}, err
	}
	return session.Credential{
		AccessToken:     out.AccessToken,
		AccessExpiresAt: started.Add(time.Duration(out.ExpiresIn) * time.Second),
		RefreshToken:    refreshToken,
	}, nil
}

// Logout revokes the refresh token server side and always clears the local
// session. The server error, if any, is still returned.
func (c *Client) Logout(ctx context.Context) error {
	cred, ok := c.store.Get()
	defer c.store.Clear()
	if !ok || cred.RefreshToken == "" {
		return nil
	}
	err := c.do(session.WithoutAuth(ctx), http.MethodPost, "/api/auth/logout", nil,
		dto.RefreshRequest{RefreshToken: cred.RefreshToken}, nil)
	if err != nil {
		c.logger.Warn("server logout failed, local session cleared anyway", zap.Error(err))
	}
	return err
}

// Me returns the authenticated caller.
func (c *Client) Me(ctx context.Context) (*dto.PrincipalSummary, error) {
	var out dto.PrincipalSummary
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, "/api/tickets", req)
}

// GetTicket fetches one visible ticket.
func (c *Client) GetTicket(ctx context.Context, id string) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodGet, ticketPath(id, ""), nil)
}

// ListOptions filters ListTickets.
type ListOptions struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// ListTickets lists the caller's own tickets.
func (c *Client) ListTickets(ctx context.Context, opts ListOptions) ([]dto.TicketResponse, error) {
	q := url.Values{}
	if len(opts.Statuses) > 0 {
		parts := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	var out []dto.TicketResponse
	if err := c.do(ctx, http.MethodGet, "/api/tickets", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the audit trail of a ticket, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]dto.HistoryEntryResponse, error) {
	var out []dto.HistoryEntryResponse
	if err := c.do(ctx, http.MethodGet, ticketPath(id, "history"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Assign assigns a ticket; a nil AssignedTo means the caller.
func (c *Client) Assign(ctx context.Context, id string, req dto.AssignRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, ticketPath(id, "assign"), req)
}

// Reassign moves an assigned ticket to someone else.
func (c *Client) Reassign(ctx context.Context, id string, req dto.AssignRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, ticketPath(id, "reassign"), req)
}

// UpdateStatus changes the workflow status.
func (c *Client) UpdateStatus(ctx context.Context, id string, req dto.StatusRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, ticketPath(id, "status"), req)
}

// UpdatePriority sets the priority.
func (c *Client) UpdatePriority(ctx context.Context, id string, req dto.PriorityRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, ticketPath(id, "priority"), req)
}

// Close closes a ticket with a closure code.
func (c *Client) Close(ctx context.Context, id string, req dto.CloseRequest) (*dto.TicketResponse, error) {
	return c.ticket(ctx, http.MethodPost, ticketPath(id, "close"), req)
}

func (c *Client) ticket(ctx context.Context, method, path string, body any) (*dto.TicketResponse, error) {
	var out dto.TicketResponse
	if err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func ticketPath(id, action string) string {
	p := "/api/tickets/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// do sends one request and decodes the data envelope into out. Bodies are
// buffered so the pipeline can replay them after a refresh.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("portalclient: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("portalclient: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			return de
		}
		return fmt.Errorf("portalclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("portalclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env dto.ErrorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		env.Error.Message = strings.TrimSpace(string(raw))
	}
	return apperrors.FromStatus(resp.StatusCode, env.Error.Code, env.Error.Message, env.Error.Details)
}
