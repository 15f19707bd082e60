// Package incident tracks fleet incidents in an append-only JSONL
// ledger and drives healing: patch, optional canary deploy, and a
// rollback safety net when the deploy fails.
package incident

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Record is one incident state. Records are re-appended on every
// transition; the ledger keeps the full history and readers reduce to
// the latest record per id.
type Record struct {
	IncidentID     string `json:"incident_id"`
	ProjectID      string `json:"project_id"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	Source         string `json:"source"`
	Severity       string `json:"severity"`
	Status         string `json:"status"`
	SignalSummary  string `json:"signal_summary"`
	ProposedFix    string `json:"proposed_fix"`
	PatchSuccess   bool   `json:"patch_success"`
	DeploySuccess  bool   `json:"deploy_success"`
	PostmortemPath string `json:"postmortem_path,omitempty"`
}

// Store is the incident ledger.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append writes one record as a single JSON line.
func (s *Store) Append(rec *Record) error {
	if strings.TrimSpace(rec.IncidentID) == "" {
		return fmt.Errorf("incident: incident_id must be non-empty")
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("incident: marshal record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("incident: create directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("incident: open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("incident: write record: %w", err)
	}
	return nil
}

// List reduces the ledger to the latest record per incident id, sorted
// by created_at then id. Malformed lines are skipped.
func (s *Store) List() ([]*Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("incident: open ledger: %w", err)
	}
	defer f.Close()

	latest := make(map[string]*Record)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.IncidentID == "" {
			continue
		}
		latest[rec.IncidentID] = &rec
	}
	records := make([]*Record, 0, len(latest))
	for _, rec := range latest {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].IncidentID < records[j].IncidentID
	})
	return records, nil
}

// Get returns the latest record for an incident id, or nil when the id
// has never been seen.
func (s *Store) Get(id string) (*Record, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.IncidentID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
