package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/models"
)

func identityEcho(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(IdentityFrom(r.Context()))
}

func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)

	token, err := ti.GenerateToken(7, models.RoleAdmin)
	require.NoError(t, err)

	claims, err := ti.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)
	ti.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := ti.GenerateToken(1, models.RoleUser)
	require.NoError(t, err)

	ti.now = time.Now
	_, err = ti.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer("other-secret", time.Hour)
	foreign, err := other.GenerateToken(1, models.RoleUser)
	require.NoError(t, err)
	_, err = ti.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)
	token, err := ti.GenerateToken(3, models.RoleUser)
	require.NoError(t, err)

	handler := ti.Authenticate(http.HandlerFunc(identityEcho))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID int64
	}{
		{name: "anonymous", header: "", wantStatus: http.StatusOK},
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK, wantUserID: 3},
		{name: "bad format", header: "Token " + token, wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var id models.Identity
				require.NoError(t, json.NewDecoder(w.Body).Decode(&id))
				assert.Equal(t, tt.wantUserID, id.UserID)
			}
		})
	}
}

func TestAccessMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r := chi.NewRouter()
	r.With(RequireAuth).Get("/me", ok)
	r.With(AdminOnly).Get("/admin", ok)
	r.With(OwnerOrAdmin).Get("/users/{id}", ok)

	anon := models.Identity{}
	user := models.Identity{UserID: 5, Role: models.RoleUser}
	admin := models.Identity{UserID: 1, Role: models.RoleAdmin}

	tests := []struct {
		name       string
		path       string
		id         models.Identity
		wantStatus int
	}{
		{"auth anonymous", "/me", anon, http.StatusUnauthorized},
		{"auth user", "/me", user, http.StatusOK},
		{"admin anonymous", "/admin", anon, http.StatusUnauthorized},
		{"admin as user", "/admin", user, http.StatusForbidden},
		{"admin as admin", "/admin", admin, http.StatusOK},
		{"owner self", "/users/5", user, http.StatusOK},
		{"owner other", "/users/6", user, http.StatusForbidden},
		{"owner bad id", "/users/x", user, http.StatusBadRequest},
		{"owner admin", "/users/6", admin, http.StatusOK},
		{"owner anonymous", "/users/5", anon, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(WithIdentity(req.Context(), tt.id))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remote string, id models.Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req = req.WithContext(WithIdentity(req.Context(), id))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", models.Identity{}))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001", models.Identity{}))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002", models.Identity{}))

	// Other callers keep their own buckets.
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", models.Identity{}))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1003", models.Identity{UserID: 9, Role: models.RoleUser}))
}
