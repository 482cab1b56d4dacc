package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	sm := NewSessionManager()

	token := sm.Create()
	require.NotEmpty(t, token)
	assert.True(t, sm.Validate(token))

	sm.Delete(token)
	assert.False(t, sm.Validate(token))

	assert.False(t, sm.Validate(""))
	assert.False(t, sm.Validate("no-such-token"))
}

func TestSessionExpiry(t *testing.T) {
	sm := NewSessionManager()

	token := sm.Create()
	require.NotEmpty(t, token)

	sm.mu.Lock()
	sm.sessions[token] = time.Now().Add(-time.Second)
	sm.mu.Unlock()

	assert.False(t, sm.Validate(token))

	// An expired token is forgotten, not just rejected.
	sm.mu.Lock()
	_, kept := sm.sessions[token]
	sm.mu.Unlock()
	assert.False(t, kept)
}

func TestCSRFTokenSingleUse(t *testing.T) {
	sm := NewSessionManager()

	token := sm.CreateCSRFToken()
	require.NotEmpty(t, token)

	assert.True(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken("forged"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	sm := NewSessionManager()
	r := httptest.NewRequest(http.MethodPost, "/login", nil)

	w := httptest.NewRecorder()
	assert.False(t, sm.Login(w, r, "admin", "wrong", "admin", "secret"))
	assert.Empty(t, w.Result().Cookies())

	w = httptest.NewRecorder()
	require.True(t, sm.Login(w, r, "admin", "secret", "admin", "secret"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.True(t, sm.Validate(cookies[0].Value))
}

func TestAuthMiddlewareRedirectsAnonymous(t *testing.T) {
	sm := NewSessionManager()
	handler := sm.AuthMiddleware()(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	token := sm.Create()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w = httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckOriginTrustsLocalAndSameHost(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin header", "", "studio:8080", true},
		{"localhost", "http://localhost:3000", "studio:8080", true},
		{"same host", "http://studio:8080", "studio:8080", true},
		{"private lan", "http://192.168.1.20", "studio:8080", true},
		{"public host", "http://evil.example.com", "studio:8080", false},
		{"malformed origin", "://bad", "studio:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}
