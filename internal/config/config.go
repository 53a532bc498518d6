// Package config resolves process-wide settings from flags and
// GATEPASS_-prefixed environment variables, following the database
// package's flag-then-env-then-default priority.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/campusgate/gatepass/internal/database"
)

// Config holds every setting main.go needs to wire the process together.
type Config struct {
	Port       string
	DBPath     string
	Secret     []byte
	TTL        time.Duration
	Zone       *time.Location
	PolicyPath string
}

// Load parses flags (falling back to env vars, falling back to defaults)
// into a Config. Call once from main.
func Load() (Config, error) {
	var (
		port       string
		dbPath     string
		secretFlag string
		ttl        time.Duration
		zoneName   string
		policyPath string
	)

	flag.StringVar(&port, "port", "", "HTTP listen port (default 8080, env GATEPASS_PORT)")
	flag.StringVar(&dbPath, "db", "", "SQLite database path (env GATEPASS_DB_PATH)")
	flag.StringVar(&secretFlag, "secret", "", "HMAC signing secret (env GATEPASS_SECRET)")
	flag.DurationVar(&ttl, "ttl", 0, "pass approval TTL (default 15m, env GATEPASS_TTL)")
	flag.StringVar(&zoneName, "zone", "", "civil-date timezone name (default Asia/Kolkata, env GATEPASS_ZONE)")
	flag.StringVar(&policyPath, "location-policy", "", "location policy JSON path (env GATEPASS_LOCATION_POLICY_PATH)")
	flag.Parse()

	cfg := Config{
		Port:   firstNonEmpty(port, os.Getenv("GATEPASS_PORT"), "8080"),
		DBPath: database.ResolvePath(dbPath),
	}

	secret := firstNonEmpty(secretFlag, os.Getenv("GATEPASS_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("no signing secret configured: set --secret or GATEPASS_SECRET")
	}
	cfg.Secret = []byte(secret)

	if ttl > 0 {
		cfg.TTL = ttl
	} else if envTTL := os.Getenv("GATEPASS_TTL"); envTTL != "" {
		d, err := time.ParseDuration(envTTL)
		if err != nil {
			return Config{}, fmt.Errorf("parse GATEPASS_TTL: %w", err)
		}
		cfg.TTL = d
	} else {
		cfg.TTL = 15 * time.Minute
	}

	zone := firstNonEmpty(zoneName, os.Getenv("GATEPASS_ZONE"), "Asia/Kolkata")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	cfg.Zone = loc

	cfg.PolicyPath = firstNonEmpty(policyPath, os.Getenv("GATEPASS_LOCATION_POLICY_PATH"),
		filepath.Join("data", "location_policy.json"))

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
