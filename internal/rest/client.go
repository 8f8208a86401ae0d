// Package rest implements domain.Store against a PostgREST endpoint such as
// the one a Supabase project exposes under /rest/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

// Client talks to the remote tables bookings, closed_days, users and roles.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

var _ domain.Store = (*Client)(nil)

// NewClient builds a client for baseURL, e.g. https://xyz.supabase.co/rest/v1.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// UseRedisCache enables caching of month reads. Writes drop the affected month.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

type tokenKey struct{}

// WithAccessToken makes requests made with ctx carry the user's own JWT instead
// of the API key, so row level security applies to that user.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

type scopeKey struct{}

const serviceScope = "service"

// cacheScopes are all audiences a month may be cached for. Writes drop every one.
var cacheScopes = []string{serviceScope, models.RoleUser, models.RoleAdmin}

// WithCacheScope names the row level security audience of requests made with
// ctx. Cached month reads are shared only inside one scope.
func WithCacheScope(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, scopeKey{}, role)
}

// cacheScope reports the scope of ctx. Requests under an access token with no
// known scope are not cached.
func cacheScope(ctx context.Context) (string, bool) {
	if t, _ := ctx.Value(tokenKey{}).(string); t == "" {
		return serviceScope, true
	}
	scope, _ := ctx.Value(scopeKey{}).(string)
	if scope == serviceScope || !slices.Contains(cacheScopes, scope) {
		return "", false
	}
	return scope, true
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s %s", e.Status, e.Code, e.Message)
}

func (e *APIError) conflict() bool {
	return e.Status == http.StatusConflict || e.Code == uniqueViolation
}

type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer []string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	endpoint := c.baseURL + "/" + r.table
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return err
	}
	c.addHeaders(ctx, req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", r.method).
		Str("table", r.table).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("rest call")

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	token := c.apiKey
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		token = t
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 || key == "" {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 || key == "" {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	keys = slices.DeleteFunc(keys, func(k string) bool { return k == "" })
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// flexID accepts both numeric and string primary keys.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	*f = flexID(n.String())
	return nil
}

func eq(v string) string  { return "eq." + v }
func gte(v string) string { return "gte." + v }
func lte(v string) string { return "lte." + v }
