package authn

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/database"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
)

func newTestService(t *testing.T) *Service {
	svc, _ := newTestServiceWithAudit(t)
	return svc
}

func newTestServiceWithAudit(t *testing.T) (*Service, *audit.LoginAudit) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gatepass_authn_test_*.db")
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

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO principals (id, name, role, active, subject_code, username, password_hash)
		VALUES (1, 'Guard One', 'guard', 1, NULL, 'guard1', ?)`, hash); err != nil {
		t.Fatalf("seed principal: %v", err)
	}

	s := store.New(db)
	t.Cleanup(s.Close)

	loginAudit, err := audit.NewLoginAudit(db)
	if err != nil {
		t.Fatalf("NewLoginAudit: %v", err)
	}

	svc := New(s)
	svc.Limiter = NewRateLimiter()
	svc.LoginAudit = loginAudit
	return svc, loginAudit
}

func TestLoginSuccessThenMe(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tok, role, err := svc.Login(ctx, "10.0.0.1", "guard1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if role != model.RoleGuard {
		t.Errorf("role = %v, want guard", role)
	}

	p, err := svc.Me(ctx, tok)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if p.ID != 1 || p.Role != model.RoleGuard {
		t.Errorf("Me = %+v, want principal 1/guard", p)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "10.0.0.2", "guard1", "wrong password"); err != ErrInvalidCredentials {
		t.Errorf("Login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRateLimitedAfterFiveFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ip := "10.0.0.3"

	for i := 0; i < maxAttempts; i++ {
		if _, _, err := svc.Login(ctx, ip, "guard1", "wrong"); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i, err)
		}
	}

	if _, _, err := svc.Login(ctx, ip, "guard1", "correct horse"); err != ErrRateLimited {
		t.Errorf("Login after %d failures = %v, want ErrRateLimited", maxAttempts, err)
	}
}

func TestMeWithBogusTokenFails(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Me(context.Background(), "not-a-real-token"); err != ErrInvalidSession {
		t.Errorf("Me(bogus) error = %v, want ErrInvalidSession", err)
	}
}

func TestLoginRecordsAuditTrail(t *testing.T) {
	svc, loginAudit := newTestServiceWithAudit(t)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "10.0.0.5", "guard1", "wrong password"); err != ErrInvalidCredentials {
		t.Fatalf("Login error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "10.0.0.5", "guard1", "correct horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	entries, err := loginAudit.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Result != "success" {
		t.Errorf("entries[0].Result = %q, want success", entries[0].Result)
	}
	if entries[1].Result != "failure" {
		t.Errorf("entries[1].Result = %q, want failure", entries[1].Result)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tok, _, err := svc.Login(ctx, "10.0.0.4", "guard1", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, tok); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Me(ctx, tok); err != ErrInvalidSession {
		t.Errorf("Me after logout = %v, want ErrInvalidSession", err)
	}
}
