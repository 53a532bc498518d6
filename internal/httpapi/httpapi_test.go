package httpapi

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/database"
	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/verify"
)

var testSecret = []byte("httpapi-test-secret")

// newTestServer wires a full Server against a fresh temp-file SQLite
// database, mirroring cmd/server/main.go's dependency graph. It returns
// the raw *sql.DB too, so tests can seed principals directly.
func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "httpapi-*.db")
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

	s := store.New(db)
	t.Cleanup(s.Close)

	policyPath := tmpFile.Name() + ".policy.json"
	t.Cleanup(func() { os.Remove(policyPath) })
	policyRepo := geofence.NewPolicyStore(policyPath)
	evaluator := geofence.NewEvaluator(policyRepo)
	fx := sidefx.New()

	engine := lifecycle.New(s, testSecret, evaluator, fx, time.UTC)

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

	srv := &Server{
		Store:      s,
		Lifecycle:  engine,
		Verifier:   &verify.Verifier{Store: s, Lifecycle: engine, Recorder: recorder, Secret: testSecret, SideFX: fx},
		Auth:       authService,
		Recorder:   recorder,
		Hub:        hub,
		Analytics:  audit.NewAnalytics(s, time.UTC),
		PolicyRepo: policyRepo,
		LoginAudit: loginAudit,
	}
	return srv, db
}

// seedPrincipal inserts a principal row with the given id/role, and an
// optional username/password for login-capable principals.
func seedPrincipal(t *testing.T, db *sql.DB, id uint64, name, role, username, password string) {
	t.Helper()
	var hash sql.NullString
	if password != "" {
		h, err := authn.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		hash = sql.NullString{String: h, Valid: true}
	}

	var usernameArg sql.NullString
	if username != "" {
		usernameArg = sql.NullString{String: username, Valid: true}
	}

	_, err := db.Exec(`INSERT INTO principals (id, name, role, active, subject_code, username, password_hash)
		VALUES (?, ?, ?, 1, ?, ?, ?)`,
		id, name, role, "S"+role+"-"+name, usernameArg, hash)
	if err != nil {
		t.Fatalf("seed principal %d: %v", id, err)
	}
}

// loginToken logs username/password in through the auth service
// (Server.Auth.Login) and returns the issued bearer token.
func loginToken(t *testing.T, srv *Server, username, password string) string {
	t.Helper()
	token, _, err := srv.Auth.Login(context.Background(), "127.0.0.1", username, password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return token
}
