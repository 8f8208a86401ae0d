package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shiftbook/internal/config"
	"shiftbook/internal/domain"
	"shiftbook/internal/metrics"
	"shiftbook/internal/models"
	"shiftbook/internal/rest"
	"shiftbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// HTTPServer is the JSON API over the calendar and session services.
type HTTPServer struct {
	cfg      config.APIConfig
	calendar *service.CalendarService
	sessions *service.SessionService
	boards   *service.Boards
	pinger   Pinger
	limiter  *rateLimiter
	server   *http.Server
	log      zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	cal *service.CalendarService,
	sessions *service.SessionService,
	pinger Pinger,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		calendar: cal,
		sessions: sessions,
		boards:   service.NewBoards(boardIdleTTL),
		pinger:   pinger,
		limiter:  newRateLimiter(cfg.RateLimit),
		log:      zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	mux.HandleFunc("POST /api/v1/auth/sign-in", srv.handleSignIn)
	mux.HandleFunc("POST /api/v1/auth/sign-out", srv.handleSignOut)

	mux.HandleFunc("GET /api/v1/calendar", srv.authed(srv.handleCalendar))
	mux.HandleFunc("POST /api/v1/bookings", srv.authed(srv.handleBook))
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.authed(srv.handleCancel))
	mux.HandleFunc("GET /api/v1/me/shifts", srv.authed(srv.handleMyShifts))
	mux.HandleFunc("GET /api/v1/me/stats", srv.authed(srv.handleMyStats))

	mux.HandleFunc("POST /api/v1/admin/blocks", srv.authed(srv.handleBlock))
	mux.HandleFunc("GET /api/v1/admin/closed-days", srv.authed(srv.handleListClosedDays))
	mux.HandleFunc("POST /api/v1/admin/closed-days", srv.authed(srv.handleAddClosedDay))
	mux.HandleFunc("DELETE /api/v1/admin/closed-days/{id}", srv.authed(srv.handleDeleteClosedDay))
	mux.HandleFunc("GET /api/v1/admin/stats", srv.authed(srv.handleAdminStats))
	mux.HandleFunc("GET /api/v1/admin/stats/export", srv.authed(srv.handleExportStats))
	mux.HandleFunc("GET /api/v1/admin/users", srv.authed(srv.handleUsers))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.rateLimitMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler is the full middleware chain, for embedding and tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// boardIdleTTL bounds how long an unused session keeps its cached calendar.
const boardIdleTTL = 30 * time.Minute

type ctxKey int

const (
	sessionKey ctxKey = iota
	tokenKey
)

func sessionFrom(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionKey).(*models.Session)
	return sess
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *models.Session)

// authed resolves the bearer token before calling h.
func (s *HTTPServer) authed(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		sess, err := s.sessions.Authenticate(r.Context(), token)
		if err != nil {
			if token != "" && statusFor(err) == http.StatusUnauthorized {
				s.boards.Drop(token)
			}
			s.writeServiceError(w, err)
			return
		}
		// REST store requests run under the caller's token
		ctx := rest.WithAccessToken(r.Context(), token)
		ctx = rest.WithCacheScope(ctx, sess.Role)
		ctx = context.WithValue(ctx, sessionKey, sess)
		ctx = context.WithValue(ctx, tokenKey, token)
		h(w, r.WithContext(ctx), sess)
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}

// clientKey prefers the bearer token so users behind one NAT do not share a bucket.
func clientKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return "token:" + token
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return clientKeyUnknown
	}
	return "ip:" + host
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// ServeMux sets Pattern on the request it was handed
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var br *badRequest
	switch {
	case errors.As(err, &br), domain.IsInvalidRange(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotAuthenticated), domain.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotTaken),
		errors.Is(err, domain.ErrAlreadyCanceled),
		errors.Is(err, domain.ErrSlotNotActionable),
		errors.Is(err, domain.ErrClosedDay),
		errors.Is(err, service.ErrStale):
		return http.StatusConflict
	case domain.IsStoreError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", code).Msg("request failed")
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// badRequest is a malformed query or body.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &badRequest{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
