// Package auth consumes the backend-as-a-service auth endpoints (GoTrue API)
// and verifies the access tokens they issue.
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

	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidToken   = errors.New("invalid access token")
	ErrBadCredentials = errors.New("invalid login credentials")
)

// Client signs users in against {url}/token and verifies HS256 tokens with
// the project's JWT secret.
type Client struct {
	baseURL    string
	anonKey    string
	secret     []byte
	httpClient *http.Client
	logger     *zerolog.Logger
	now        func() time.Time
}

var _ domain.Authenticator = (*Client)(nil)

func NewClient(baseURL, anonKey, jwtSecret string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		secret:     []byte(jwtSecret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e errorResponse) message() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// SignIn exchanges an email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	if email == "" || password == "" {
		return nil, &domain.AuthError{Err: ErrBadCredentials}
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("sign in request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("read sign in response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		c.logger.Warn().Int("status", resp.StatusCode).Str("email", email).Msg("sign in rejected")
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, &domain.AuthError{Err: fmt.Errorf("%w: %s", ErrBadCredentials, e.message())}
		}
		return nil, &domain.AuthError{Err: fmt.Errorf("sign in: http %d: %s", resp.StatusCode, e.message())}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("decode sign in response: %w", err)}
	}
	if tr.AccessToken == "" || tr.User.ID == "" {
		return nil, &domain.AuthError{Err: errors.New("sign in response carries no session")}
	}

	expiresAt := tr.ExpiresAt
	if expiresAt == 0 && tr.ExpiresIn > 0 {
		expiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	}
	return &models.Session{
		Token:     tr.AccessToken,
		UserID:    tr.User.ID,
		Email:     tr.User.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// SignOut revokes the token on the auth server.
func (c *Client) SignOut(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.AuthError{Err: fmt.Errorf("sign out request: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 401 означает, что токен уже недействителен
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		return &domain.AuthError{Err: fmt.Errorf("sign out: http %d", resp.StatusCode)}
	}
	return nil
}

// Claims is the subset of the access token payload we rely on.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify validates signature and expiry and returns the session the token
// describes. Role is left empty; it comes from the roles table.
func (c *Client) Verify(token string) (*models.Session, error) {
	if len(c.secret) == 0 {
		return nil, &domain.AuthError{Err: errors.New("jwt secret is not configured")}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, &domain.AuthError{Err: fmt.Errorf("%w: %w", ErrInvalidToken, err)}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, &domain.AuthError{Err: ErrInvalidToken}
	}

	s := &models.Session{Token: token, UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return s, nil
}

// Sign issues a token for the given user. Used by tests and the CLI against a
// self-hosted store where no auth server exists.
func Sign(secret, userID, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
