package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/pkg/utils"
)

type stubSessions struct {
	sessions map[string]*entity.Session
	err      error
}

func (s *stubSessions) FindValidSession(_ context.Context, token string) (*entity.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions[token], nil
}

func (s *stubSessions) CleanExpiredSessions(context.Context) (int64, error) { return 0, nil }

func echoIdentity(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := utils.GetUserIDFromContext(r.Context())
		assert.True(t, ok)
		role, _ := utils.GetRoleFromContext(r.Context())
		w.Header().Set("X-User", id.String())
		w.Header().Set("X-Role", role)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthSession(t *testing.T) {
	userID := uuid.New()
	sessions := &stubSessions{sessions: map[string]*entity.Session{
		"good-token": {UserID: userID, Role: entity.RoleProvider},
	}}
	handler := AuthSession(sessions, zap.NewNop())(echoIdentity(t))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer stale-token", http.StatusUnauthorized},
		{"valid", "Bearer good-token", http.StatusNoContent},
		{"lowercase scheme", "bearer good-token", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, userID.String(), rec.Header().Get("X-User"))
				assert.Equal(t, "provider", rec.Header().Get("X-Role"))
			}
		})
	}
}

func TestAuthSession_LookupFailure(t *testing.T) {
	handler := AuthSession(&stubSessions{err: errors.New("db down")}, zap.NewNop())(echoIdentity(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequireRole(zap.NewNop(), "client")(ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for role, want := range map[string]int{"client": http.StatusNoContent, "provider": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(utils.SetUserContext(req.Context(), uuid.New(), role))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestWebhookSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for _, tt := range []struct {
		secret, given string
		want          int
	}{
		{"s3cret", "s3cret", http.StatusNoContent},
		{"s3cret", "guess", http.StatusUnauthorized},
		{"s3cret", "", http.StatusUnauthorized},
		{"", "", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/confirm", nil)
		if tt.given != "" {
			req.Header.Set("X-Webhook-Secret", tt.given)
		}
		rec := httptest.NewRecorder()
		WebhookSecret(tt.secret, zap.NewNop())(ok).ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "secret=%q given=%q", tt.secret, tt.given)
	}
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RateLimit(NewRateLimiter(0.001, 2), zap.NewNop())(ok)

	call := func(remote string, user *uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)
		req.RemoteAddr = remote
		if user != nil {
			req = req.WithContext(utils.SetUserContext(req.Context(), *user, "client"))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:4000", nil))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:4001", nil))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:4002", nil))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:4000", nil))

	// authenticated callers get their own bucket regardless of address
	user := uuid.New()
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:4003", &user))
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := CORS([]string{"https://app.example.com"})(ok)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecover(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recover(zap.NewNop())(boom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":false,"message":"Internal server error"}`, rec.Body.String())
}
