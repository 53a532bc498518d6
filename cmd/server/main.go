// Command server runs the campus gate pass API: pass issuance and
// approval, token-based gate verification, live scan broadcast, and
// admin analytics, backed by a single SQLite file.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusgate/gatepass/internal/audit"
	"github.com/campusgate/gatepass/internal/authn"
	"github.com/campusgate/gatepass/internal/config"
	"github.com/campusgate/gatepass/internal/database"
	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/httpapi"
	"github.com/campusgate/gatepass/internal/lifecycle"
	"github.com/campusgate/gatepass/internal/middleware"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
	"github.com/campusgate/gatepass/internal/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	s := store.New(db)
	defer s.Close()

	policyRepo := geofence.NewPolicyStore(cfg.PolicyPath)
	evaluator := geofence.NewEvaluator(policyRepo)
	fx := sidefx.New()

	engine := lifecycle.New(s, cfg.Secret, evaluator, fx, cfg.Zone)
	engine.TTL = cfg.TTL

	recorder := audit.NewRecorder(s, nil)
	hub := audit.NewHub(recorder.Recent)
	recorder.Hub = hub
	engine.Recorder = recorder

	verifier := &verify.Verifier{
		Store:     s,
		Lifecycle: engine,
		Recorder:  recorder,
		Secret:    cfg.Secret,
		SideFX:    fx,
	}

	authService := authn.New(s)
	analytics := audit.NewAnalytics(s, cfg.Zone)

	loginAudit, err := audit.NewLoginAudit(db)
	if err != nil {
		log.Fatalf("init login audit: %v", err)
	}
	authService.LoginAudit = loginAudit
	go runLoginAuditCleanup(loginAudit)

	srv := &httpapi.Server{
		Store:      s,
		Lifecycle:  engine,
		Verifier:   verifier,
		Auth:       authService,
		Recorder:   recorder,
		Hub:        hub,
		Analytics:  analytics,
		PolicyRepo: policyRepo,
		LoginAudit: loginAudit,
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimit, middleware.DefaultBurst)

	handler := middleware.RequestTracing(
		middleware.BodySizeLimit(middleware.MaxBodySize)(
			middleware.SecurityHeaders(
				limiter.Middleware(
					srv.Routes(),
				),
			),
		),
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("gatepass server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server stopped")
}

// loginAuditRetention is how long a login attempt stays in the audit trail
// before runLoginAuditCleanup prunes it.
const loginAuditRetention = 90 * 24 * time.Hour

// runLoginAuditCleanup prunes old login audit rows once a day for the life
// of the process. It never returns.
func runLoginAuditCleanup(a *audit.LoginAudit) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if n, err := a.Cleanup(loginAuditRetention); err != nil {
			log.Printf("login audit cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("login audit cleanup: removed %d old entries", n)
		}
	}
}
