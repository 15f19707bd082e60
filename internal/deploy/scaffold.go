package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// artifactDir is the per-project directory deployment scaffolds and
// markers are written into.
const artifactDir = ".autosd"

func writeManifest(req Request, targetID string) error {
	path := filepath.Join(req.Dir, artifactDir, fmt.Sprintf("deploy_%s.json", req.Environment))
	return writeJSON(path, map[string]string{
		"project_id":  req.ProjectID,
		"environment": req.Environment,
		"target":      targetID,
		"version":     req.Version,
		"strategy":    req.Strategy,
	})
}

func writeRollbackMarker(req Request, targetID string) error {
	path := filepath.Join(req.Dir, artifactDir, fmt.Sprintf("rollback_%s.json", req.Environment))
	return writeJSON(path, map[string]string{
		"project_id":  req.ProjectID,
		"environment": req.Environment,
		"target":      targetID,
		"version":     req.Version,
	})
}

func writeJSON(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	return nil
}

// writeFileIfAbsent writes a scaffold only when the path does not
// already exist, so operator edits survive redeploys.
func writeFileIfAbsent(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("deploy: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("deploy: %w", err)
	}
	return true, nil
}
