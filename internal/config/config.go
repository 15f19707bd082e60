// Package config resolves all control-plane filesystem paths once at
// process start. No other package reads the environment.
package config

import (
	"os"
	"path/filepath"
)

// Environment variables recognized at startup.
const (
	EnvPreauthHome   = "AUTOSD_PREAUTH_HOME"
	EnvRegistryPath  = "AUTOSD_REGISTRY_PATH"
	EnvIncidentsPath = "AUTOSD_INCIDENTS_PATH"
	EnvAuditLog      = "AUTOSD_AUDIT_LOG"
)

// RepoRegistryRelativePath is the repository-local registry overlay
// merged read-only into the reduced view when present under the cwd.
const RepoRegistryRelativePath = ".autosd_portfolio/registry.jsonl"

// Config holds every path the control plane touches. Constructed once
// in the CLI entrypoint and passed into component constructors.
type Config struct {
	// PreauthHome holds signing keys, grant files, and the revocation
	// ledger (keys/, grants/, revoked.jsonl).
	PreauthHome string
	// RegistryPath is the writable portfolio registry JSONL file.
	RegistryPath string
	// RegistryOverlays are additional read-only registry JSONL files
	// merged into the reduced view.
	RegistryOverlays []string
	// IncidentsPath is the incident ledger JSONL file.
	IncidentsPath string
	// AuditLogPath is the append-only audit trail JSONL file.
	AuditLogPath string
	// PolicyPath is an optional YAML override for the base policy.
	PolicyPath string
}

// FromEnv builds a Config from the AUTOSD_* environment with ~/.autosd
// defaults. The repo-local registry overlay is added when it exists.
func FromEnv() Config {
	home := userHome()
	cfg := Config{
		PreauthHome:   envOr(EnvPreauthHome, filepath.Join(home, ".autosd", "preauth")),
		RegistryPath:  envOr(EnvRegistryPath, filepath.Join(home, ".autosd", "registry.jsonl")),
		IncidentsPath: envOr(EnvIncidentsPath, filepath.Join(home, ".autosd", "incidents.jsonl")),
		AuditLogPath:  envOr(EnvAuditLog, filepath.Join(home, ".autosd", "audit.log.jsonl")),
		PolicyPath:    filepath.Join(home, ".autosd", "policy.yaml"),
	}
	if cwd, err := os.Getwd(); err == nil {
		overlay := filepath.Join(cwd, filepath.FromSlash(RepoRegistryRelativePath))
		if info, err := os.Stat(overlay); err == nil && !info.IsDir() {
			cfg.RegistryOverlays = append(cfg.RegistryOverlays, overlay)
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}
