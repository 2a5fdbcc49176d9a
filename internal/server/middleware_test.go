package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestDevIdentity verifies the dev identity middleware marks every request
// as the local user.
func TestDevIdentity(t *testing.T) {
	var got UserInfo
	handler := DevIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = userInfoFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got.Login != "local" {
		t.Errorf("login = %q, want local", got.Login)
	}
}

// TestUserInfoFromContextSet verifies userInfoFromContext returns the value
// stored by identity middleware.
func TestUserInfoFromContextSet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com"})
	if info := userInfoFromContext(req.WithContext(ctx)); info.Login != "alice@example.com" {
		t.Errorf("login = %q", info.Login)
	}
}

// TestResolveIdentity verifies resolved callers reach the handler and
// unresolved ones get a 401.
func TestResolveIdentity(t *testing.T) {
	resolve := func(r *http.Request) (UserInfo, error) {
		if r.RemoteAddr == "100.64.0.1:1234" {
			return UserInfo{Login: "alice@example.com", DisplayName: "Alice"}, nil
		}
		return UserInfo{}, errors.New("not a tailnet peer")
	}
	var got UserInfo
	handler := ResolveIdentity(resolve, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = userInfoFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "100.64.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got.DisplayName != "Alice" {
		t.Errorf("status %d, user %+v", rec.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown caller status = %d, want 401", rec.Code)
	}
}

// TestCORSPreflight verifies OPTIONS requests short-circuit with the allowed
// methods.
func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("status %d, called %v", rec.Code, called)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}
}
