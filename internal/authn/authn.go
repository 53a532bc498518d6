// Package authn resolves an HTTP bearer token to the authenticated
// Principal {id, role} the rest of the system consumes, and issues that
// token from a username/password login guarded by a per-IP rate limiter.
// User registration, profile management, and anything beyond this
// credential check are out of scope.
package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
)

// DefaultSessionTTL bounds how long an issued bearer token stays valid.
const DefaultSessionTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("authn: invalid username or password")
	ErrRateLimited        = errors.New("authn: too many failed attempts, try again later")
	ErrInvalidSession     = errors.New("authn: invalid or expired session")
	ErrInactive           = errors.New("authn: principal is inactive")
)

// Service resolves logins and bearer tokens against the store.
type Service struct {
	Store      *store.Store
	SessionTTL time.Duration
	Limiter    *RateLimiter
	LoginAudit *audit.LoginAudit // optional; nil disables the login audit trail
}

// New returns a Service with DefaultSessionTTL and a fresh RateLimiter.
func New(s *store.Store) *Service {
	return &Service{Store: s, SessionTTL: DefaultSessionTTL, Limiter: NewRateLimiter()}
}

func (s *Service) ttl() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

// Login verifies username/password for the caller at ip, returning a bearer
// token and the principal's role on success. Failed attempts count against
// ip's rate-limit budget; a successful login resets it.
func (s *Service) Login(ctx context.Context, ip, username, password string) (string, model.Role, error) {
	if !s.Limiter.AllowLogin(ip) {
		return "", "", ErrRateLimited
	}

	cred, err := s.Store.GetCredentialByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		s.Limiter.RecordAttempt(ip)
		s.LoginAudit.LogFailure(username, ip, "unknown username")
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", err
	}
	if !cred.Active {
		s.LoginAudit.LogFailure(username, ip, "inactive principal")
		return "", "", ErrInactive
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		s.Limiter.RecordAttempt(ip)
		s.LoginAudit.LogFailure(username, ip, "invalid password")
		return "", "", ErrInvalidCredentials
	}
	s.Limiter.Reset(ip)

	tok, err := generateToken(32)
	if err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}

	if err := s.Store.CreateSession(ctx, hashToken(tok), cred.ID, time.Now().UTC().Add(s.ttl())); err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}

	s.LoginAudit.LogSuccess(username, ip)
	return tok, cred.Role, nil
}

// Me resolves a bearer token to its Principal, the "who am I" the HTTP
// boundary asserts roles against.
func (s *Service) Me(ctx context.Context, bearerToken string) (model.Principal, error) {
	principalID, err := s.Store.SessionPrincipalID(ctx, hashToken(bearerToken))
	if errors.Is(err, store.ErrNotFound) {
		return model.Principal{}, ErrInvalidSession
	}
	if err != nil {
		return model.Principal{}, err
	}

	p, err := s.Store.GetPrincipal(ctx, principalID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Principal{}, ErrInvalidSession
	}
	return p, err
}

// Logout invalidates bearerToken's session.
func (s *Service) Logout(ctx context.Context, bearerToken string) error {
	return s.Store.DeleteSession(ctx, hashToken(bearerToken))
}

// HashPassword hashes a plaintext password for storage. Exposed for
// seeding/bootstrap tooling, not an HTTP-facing operation.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func generateToken(numBytes int) (string, error) {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashToken(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}
