package database

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDBPath is used when neither a flag nor an environment variable
// names an explicit database file.
const DefaultDBPath = "~/.gatepass/data.db"

// ResolvePath determines the database path using the priority:
// 1. Explicit path argument (--db flag)
// 2. GATEPASS_DB_PATH environment variable
// 3. Default: ~/.gatepass/data.db
func ResolvePath(explicit string) string {
	if explicit != "" {
		return expandPath(explicit)
	}
	if envPath := os.Getenv("GATEPASS_DB_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	return expandPath(DefaultDBPath)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
