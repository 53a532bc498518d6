package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandleLoginSuccess(t *testing.T) {
	srv, db := newTestServer(t)
	seedPrincipal(t, db, 1, "Guard One", "guard", "guard1", "secret123")

	form := url.Values{"username": {"guard1"}, "password": {"secret123"}}
	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	srv.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "access_token") {
		t.Errorf("body = %s, want access_token field", w.Body.String())
	}
}

func TestHandleLoginWrongPassword(t *testing.T) {
	srv, db := newTestServer(t)
	seedPrincipal(t, db, 1, "Guard One", "guard", "guard1", "secret123")

	form := url.Values{"username": {"guard1"}, "password": {"wrong"}}
	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	srv.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleMeReturnsPrincipal(t *testing.T) {
	srv, db := newTestServer(t)
	seedPrincipal(t, db, 1, "Guard One", "guard", "guard1", "secret123")
	token := loginToken(t, srv, "guard1", "secret123")

	r := httptest.NewRequest("GET", "/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	srv.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleLogoutInvalidatesToken(t *testing.T) {
	srv, db := newTestServer(t)
	seedPrincipal(t, db, 1, "Guard One", "guard", "guard1", "secret123")
	token := loginToken(t, srv, "guard1", "secret123")

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}

	r2 := httptest.NewRequest("GET", "/auth/me", nil)
	r2.Header.Set("Authorization", "Bearer "+token)
	w2 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w2, r2)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", w2.Code)
	}
}
