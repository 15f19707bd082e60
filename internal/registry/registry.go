package registry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors for registry lookups and registration.
var (
	ErrAlreadyExists   = errors.New("registry: project already exists")
	ErrProjectNotFound = errors.New("registry: project not found")
)

// Registry reads a merged view over one writable JSONL file plus zero or
// more read-only overlays (e.g. a repo-local registry beside the shared
// home one). There is no file locking: invocations against the same
// write path must be serialized externally. Appends are whole-record
// single writes, so a reader never sees a torn prior record — at worst a
// partial final line, which the reducer ignores.
type Registry struct {
	writePath string
	readPaths []string
}

// New creates a registry writing to writePath and reading writePath plus
// the given overlays, in order.
func New(writePath string, overlays ...string) *Registry {
	readPaths := []string{writePath}
	for _, overlay := range overlays {
		if overlay != writePath {
			readPaths = append(readPaths, overlay)
		}
	}
	return &Registry{writePath: writePath, readPaths: readPaths}
}

// WritePath returns the writable ledger location.
func (r *Registry) WritePath() string { return r.writePath }

// Register creates and persists a new project entry. Fails with
// ErrAlreadyExists when the id or name already resolves among current
// (reduced) entries.
func (r *Registry) Register(params NewEntryParams) (*Entry, error) {
	existing, err := r.Get(params.ProjectID)
	if err != nil && !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, params.ProjectID)
	}
	entry, err := NewEntry(params)
	if err != nil {
		return nil, err
	}
	if err := r.Append(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Append writes one validated entry as a single JSON line.
func (r *Registry) Append(entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("registry: marshal entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.writePath), 0755); err != nil {
		return fmt.Errorf("registry: create directory: %w", err)
	}
	f, err := os.OpenFile(r.writePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("registry: open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("registry: write entry: %w", err)
	}
	return nil
}

// List reduces every readable path to the latest entry per project id
// (last write wins in append order), sorted by (created_at, project_id).
// Malformed and partially written lines are skipped, never fatal.
func (r *Registry) List(includeArchived bool) ([]*Entry, error) {
	latest := make(map[string]*Entry)
	for _, path := range r.readPaths {
		if err := reduceFile(path, latest); err != nil {
			return nil, err
		}
	}
	entries := make([]*Entry, 0, len(latest))
	for _, entry := range latest {
		if !includeArchived && entry.Archived {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return entries[i].ProjectID < entries[j].ProjectID
	})
	return entries, nil
}

// Get resolves a project by id or exact name against the reduced view,
// archived projects included. Returns ErrProjectNotFound when absent.
func (r *Registry) Get(ref string) (*Entry, error) {
	lookup := strings.TrimSpace(ref)
	if lookup == "" {
		return nil, fmt.Errorf("registry: project ref must be non-empty")
	}
	entries, err := r.List(true)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ProjectID == lookup || entry.Name == lookup {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, lookup)
}

// Update appends a new version of a project entry. The mutator receives
// a deep copy of the current entry; project_id and created_at are forced
// back to their original values and updated_at is stamped afterward, so
// no mutator can break entry identity.
func (r *Registry) Update(ref string, mutate func(*Entry)) (*Entry, error) {
	existing, err := r.Get(ref)
	if err != nil {
		return nil, err
	}
	updated := existing.Clone()
	mutate(updated)
	updated.ProjectID = existing.ProjectID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = utcNow()
	if err := r.Append(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Retire archives a project and halts automation.
func (r *Registry) Retire(ref, reason string) (*Entry, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "retired"
	}
	return r.Update(ref, func(e *Entry) {
		e.Archived = true
		e.AutomationHalted = true
		e.Metadata["retired_reason"] = reason
		e.Metadata["retired_at"] = utcNow()
	})
}

// Halt disables autonomous actions for a project (kill switch).
func (r *Registry) Halt(ref, reason string) (*Entry, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "manual halt"
	}
	return r.Update(ref, func(e *Entry) {
		e.AutomationHalted = true
		e.Metadata["halt_reason"] = reason
		e.Metadata["halted_at"] = utcNow()
	})
}

// Resume re-enables autonomous actions for a halted project.
func (r *Registry) Resume(ref string) (*Entry, error) {
	return r.Update(ref, func(e *Entry) {
		e.AutomationHalted = false
		e.Metadata["resumed_at"] = utcNow()
	})
}

// StatusRow is a compact projection for tabular CLI output.
type StatusRow struct {
	ProjectID string
	Name      string
	Version   string
	Health    string
	CI        string
	Security  string
	Archived  bool
	Halted    bool
}

// StatusRows returns the reporting projection of the reduced view.
func (r *Registry) StatusRows(includeArchived bool) ([]StatusRow, error) {
	entries, err := r.List(includeArchived)
	if err != nil {
		return nil, err
	}
	rows := make([]StatusRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, StatusRow{
			ProjectID: e.ProjectID,
			Name:      e.Name,
			Version:   e.CurrentVersion,
			Health:    e.HealthStatus,
			CI:        e.CIStatus,
			Security:  e.SecurityScanStatus,
			Archived:  e.Archived,
			Halted:    e.AutomationHalted,
		})
	}
	return rows, nil
}

// ResolveLocalDir resolves a project's working directory from registry
// metadata. Checked keys, in order: local_path, workspace_path,
// project_path. Only existing directories count.
func ResolveLocalDir(e *Entry) (string, bool) {
	for _, key := range []string{"local_path", "workspace_path", "project_path"} {
		value, ok := e.Metadata[key]
		if !ok || value == "" {
			continue
		}
		if info, err := os.Stat(value); err == nil && info.IsDir() {
			return value, true
		}
	}
	return "", false
}

// reduceFile folds one JSONL file into the latest-per-id map. Lines that
// fail to parse or validate are skipped; a partially written final line
// (no trailing newline from an interrupted writer) parses as malformed
// JSON and is likewise ignored.
func reduceFile(path string, latest map[string]*Entry) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if err := entry.Validate(); err != nil {
			continue
		}
		latest[entry.ProjectID] = &entry
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("registry: scan %s: %w", path, err)
	}
	return nil
}
