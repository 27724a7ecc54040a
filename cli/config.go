// ABOUTME: Environment-driven configuration and store selection for the console
// ABOUTME: Resolves API credentials, data directory, and KV backend from env vars
package cli

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/storage"
)

// Config collects everything the console needs from the environment.
// Variables: OUTREACH_API_BASE, OUTREACH_API_TOKEN, OUTREACH_DATA_DIR,
// OUTREACH_STORE (badger, sqlite, or memory).
type Config struct {
	APIBase  string
	APIToken string
	DataDir  string
	Store    string
}

// LoadConfig reads a .env file when present and resolves defaults. The data
// directory defaults to the XDG data home.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		APIBase:  envOr("OUTREACH_API_BASE", "http://localhost:4000"),
		APIToken: os.Getenv("OUTREACH_API_TOKEN"),
		DataDir:  envOr("OUTREACH_DATA_DIR", filepath.Join(xdg.DataHome, "outreach-console")),
		Store:    envOr("OUTREACH_STORE", "badger"),
	}
	return cfg
}

// OpenStore opens the configured KV backend. When the backend cannot be
// opened the store degrades to in-memory state, matching the persistence
// contract: mutations still apply, they just stop surviving restarts.
func OpenStore(cfg *Config, log *logrus.Logger) *storage.Store {
	var kv storage.KV
	var err error

	switch cfg.Store {
	case "sqlite":
		kv, err = storage.OpenSQLite(filepath.Join(cfg.DataDir, "outreach.db"))
	case "memory":
		kv = storage.NewMemoryKV()
	default:
		kv, err = storage.OpenBadger(filepath.Join(cfg.DataDir, "badger"))
	}

	if err != nil {
		log.WithError(err).Warn("failed to open store backend, falling back to memory")
		kv = storage.NewMemoryKV()
	}
	return storage.Open(kv, log)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
