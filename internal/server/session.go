// Package server provides the HTTP server and WebSocket handler for the web interface.
package server

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "ducker_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
)

// SessionManager tracks authenticated sessions and one-shot CSRF tokens,
// both as token-to-expiry maps. It is safe for concurrent use.
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string]time.Time
	csrfTokens map[string]time.Time
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]time.Time),
		csrfTokens: make(map[string]time.Time),
	}
}

// newToken returns a random 256-bit token, or "" if the system entropy
// source fails.
func newToken() string {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func pruneExpired(m map[string]time.Time, now time.Time) {
	maps.DeleteFunc(m, func(_ string, expiry time.Time) bool {
		return now.After(expiry)
	})
}

// Create registers a new session and returns its token.
func (sm *SessionManager) Create() string {
	token := newToken()
	if token == "" {
		return ""
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	pruneExpired(sm.sessions, now)
	sm.sessions[token] = now.Add(sessionDuration)
	return token
}

// Validate reports whether a session token is current.
func (sm *SessionManager) Validate(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	expiry, ok := sm.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(sm.sessions, token)
		return false
	}
	return true
}

// Delete forgets a session token.
func (sm *SessionManager) Delete(token string) {
	if token == "" {
		return
	}
	sm.mu.Lock()
	delete(sm.sessions, token)
	sm.mu.Unlock()
}

// AuthMiddleware returns middleware that requires a valid session cookie.
// Unauthenticated requests are redirected to /login.
func (sm *SessionManager) AuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || !sm.Validate(cookie.Value) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next(w, r)
		}
	}
}

// setSessionCookie sets or clears the session cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login checks the credentials in constant time and, on success, creates a
// session and sets its cookie.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, configUser, configPass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(configUser)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(configPass)) == 1
	if !userMatch || !passMatch {
		return false
	}

	token := sm.Create()
	if token == "" {
		return false
	}

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout clears the session cookie and deletes the session.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.Delete(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}

// CreateCSRFToken issues a short-lived token for the login form.
func (sm *SessionManager) CreateCSRFToken() string {
	token := newToken()
	if token == "" {
		return ""
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	pruneExpired(sm.csrfTokens, now)
	sm.csrfTokens[token] = now.Add(csrfTokenDuration)
	return token
}

// ValidateCSRFToken consumes a CSRF token and reports whether it was
// current. Tokens are single-use.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	expiry, ok := sm.csrfTokens[token]
	if !ok {
		return false
	}
	delete(sm.csrfTokens, token)
	return time.Now().Before(expiry)
}
