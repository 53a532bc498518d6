package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/database"
	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/httpapi"
	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/verify"
)

// newTestServer assembles the same dependency graph as main(), against a
// temp SQLite file, and returns the routed handler for httptest use.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gatepass-main-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	db, err := sql.Open("sqlite", tmpFile.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO principals (id, name, role, active, username, password_hash)
		VALUES (1, 'Gate Guard', 'guard', 1, 'guard1', ?)`, mustHash(t, "guardpass")); err != nil {
		t.Fatalf("seed guard: %v", err)
	}

	s := store.New(db)
	t.Cleanup(s.Close)

	policyPath := tmpFile.Name() + ".policy.json"
	t.Cleanup(func() { os.Remove(policyPath) })
	policyRepo := geofence.NewPolicyStore(policyPath)

	secret := []byte("main-test-secret")
	zone := time.UTC
	evaluator := geofence.NewEvaluator(policyRepo)
	fx := sidefx.New()
	engine := lifecycle.New(s, secret, evaluator, fx, zone)

	recorder := audit.NewRecorder(s, nil)
	hub := audit.NewHub(recorder.Recent)
	recorder.Hub = hub
	engine.Recorder = recorder

	loginAudit, err := audit.NewLoginAudit(db)
	if err != nil {
		t.Fatalf("NewLoginAudit: %v", err)
	}

	authService := authn.New(s)
	authService.LoginAudit = loginAudit

	srv := &httpapi.Server{
		Store:      s,
		Lifecycle:  engine,
		Verifier:   &verify.Verifier{Store: s, Lifecycle: engine, Recorder: recorder, Secret: secret, SideFX: fx},
		Auth:       authService,
		Recorder:   recorder,
		Hub:        hub,
		Analytics:  audit.NewAnalytics(s, zone),
		PolicyRepo: policyRepo,
		LoginAudit: loginAudit,
	}
	return srv.Routes()
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := authn.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t)

	r := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestLoginThenListPassesRoundTrip(t *testing.T) {
	handler := newTestServer(t)

	form := url.Values{"username": {"guard1"}, "password": {"guardpass"}}
	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	var loginResp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Data.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}

	r2 := httptest.NewRequest("GET", "/passes", nil)
	r2.Header.Set("Authorization", "Bearer "+loginResp.Data.AccessToken)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, r2)

	if w2.Code != http.StatusOK {
		t.Fatalf("list passes status = %d, body = %s", w2.Code, w2.Body.String())
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	handler := newTestServer(t)

	r := httptest.NewRequest("GET", "/passes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
