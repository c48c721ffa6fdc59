// Package auth signs users in against a GoTrue-compatible identity
// endpoint and normalizes its responses into one canonical Session shape.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
)

var (
	// ErrUnavailable indicates no auth endpoint or API key is configured.
	ErrUnavailable = errors.New("auth service unavailable")

	// ErrInvalidCredentials indicates the endpoint rejected the sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is the canonical authenticated principal. Both response shapes
// the endpoint can produce are folded into this one struct at the HTTP
// boundary; nothing downstream ever inspects raw auth payloads.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Scope converts the session into the retrieval scope used everywhere else.
func (s Session) Scope() session.Scope {
	return session.Scope{
		UserID:       s.UserID,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}

// Client talks to a GoTrue-style auth endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  log.Logger
}

// NewClient creates an auth client. baseURL is the project root; the
// GoTrue path prefix is appended per request.
func NewClient(baseURL, apiKey string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	return c.tokenRequest(ctx, "/auth/v1/token?grant_type=password", email, password)
}

// SignUp registers a new user. Depending on endpoint configuration the
// response may carry a session immediately or require confirmation first;
// in the latter case the returned session has an empty AccessToken.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	return c.tokenRequest(ctx, "/auth/v1/signup", email, password)
}

// rawSession covers both payload shapes: flat
// {access_token, refresh_token, expires_in, user:{id}} and nested
// {session:{access_token,...}, user:{id}}.
type rawSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID string `json:"id"`
	} `json:"user"`
	Session *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"session"`
}

func (c *Client) tokenRequest(ctx context.Context, path, email, password string) (Session, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return Session{}, ErrUnavailable
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Session{}, fmt.Errorf("encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("calling auth endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("reading auth response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Session{}, fmt.Errorf("auth endpoint returned status %d", resp.StatusCode)
	}

	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, fmt.Errorf("decoding auth response: %w", err)
	}
	return normalize(raw), nil
}

// normalize folds either payload shape into the canonical Session.
func normalize(raw rawSession) Session {
	s := Session{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
	}
	expiresIn := raw.ExpiresIn
	if raw.Session != nil {
		if s.AccessToken == "" {
			s.AccessToken = raw.Session.AccessToken
		}
		if s.RefreshToken == "" {
			s.RefreshToken = raw.Session.RefreshToken
		}
		if expiresIn == 0 {
			expiresIn = raw.Session.ExpiresIn
		}
	}
	if raw.User != nil {
		s.UserID = raw.User.ID
	}
	if expiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return s
}
