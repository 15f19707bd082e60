// Package registry is the append-only, schema-validated portfolio
// ledger. Current state is derived by reducing the log — the log is the
// source of truth, reads reduce last-write-wins per project id.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// DeployRecord is the most recent deploy folded into a project entry.
type DeployRecord struct {
	Environment string `json:"environment"`
	Target      string `json:"target"`
	Version     string `json:"version"`
	Timestamp   string `json:"timestamp"`
}

// Entry is one full project record. Every update appends a complete new
// entry; history is never edited. project_id and created_at are fixed
// for the life of the project.
type Entry struct {
	ProjectID           string            `json:"project_id"`
	Name                string            `json:"name"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
	Domain              string            `json:"domain"`
	Platforms           []string          `json:"platforms"`
	RepoURL             string            `json:"repo_url,omitempty"`
	DefaultBranch       string            `json:"default_branch"`
	CurrentVersion      string            `json:"current_version"`
	VersionHistory      []string          `json:"version_history"`
	LastDeploy          *DeployRecord     `json:"last_deploy"`
	Environments        []string          `json:"environments"`
	HealthStatus        string            `json:"health_status"`
	TelemetryPolicy     string            `json:"telemetry_policy"`
	DataRetentionPolicy string            `json:"data_retention_policy"`
	ComplianceProfile   string            `json:"compliance_profile"`
	TemplateVersions    map[string]int    `json:"template_versions"`
	CIStatus            string            `json:"ci_status"`
	SecurityScanStatus  string            `json:"security_scan_status"`
	AutomationHalted    bool              `json:"automation_halted"`
	Archived            bool              `json:"archived"`
	PendingPush         bool              `json:"pending_push"`
	Metadata            map[string]string `json:"metadata"`
}

// NewEntryParams carries the caller-chosen fields for a new project.
type NewEntryParams struct {
	ProjectID           string
	Name                string
	Domain              string
	Platforms           []string
	RepoURL             string
	DefaultBranch       string
	CurrentVersion      string
	Environments        []string
	TelemetryPolicy     string
	DataRetentionPolicy string
	ComplianceProfile   string
	TemplateVersions    map[string]int
	Metadata            map[string]string
}

// NewEntry builds a validated entry with safe defaults.
func NewEntry(p NewEntryParams) (*Entry, error) {
	if p.DefaultBranch == "" {
		p.DefaultBranch = "main"
	}
	if p.CurrentVersion == "" {
		p.CurrentVersion = "0.1.0"
	}
	if len(p.Environments) == 0 {
		p.Environments = []string{"dev"}
	}
	if p.TelemetryPolicy == "" {
		p.TelemetryPolicy = "off"
	}
	if p.DataRetentionPolicy == "" {
		p.DataRetentionPolicy = "30d"
	}
	if p.ComplianceProfile == "" {
		p.ComplianceProfile = "default"
	}
	if p.TemplateVersions == nil {
		p.TemplateVersions = map[string]int{}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	now := utcNow()
	entry := &Entry{
		ProjectID:           p.ProjectID,
		Name:                p.Name,
		CreatedAt:           now,
		UpdatedAt:           now,
		Domain:              p.Domain,
		Platforms:           p.Platforms,
		RepoURL:             p.RepoURL,
		DefaultBranch:       p.DefaultBranch,
		CurrentVersion:      p.CurrentVersion,
		VersionHistory:      []string{p.CurrentVersion},
		LastDeploy:          nil,
		Environments:        p.Environments,
		HealthStatus:        "unknown",
		TelemetryPolicy:     p.TelemetryPolicy,
		DataRetentionPolicy: p.DataRetentionPolicy,
		ComplianceProfile:   p.ComplianceProfile,
		TemplateVersions:    p.TemplateVersions,
		CIStatus:            "unknown",
		SecurityScanStatus:  "unknown",
		Metadata:            p.Metadata,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate enforces the entry schema. A record failing validation is
// skipped by the reducer rather than aborting the whole read.
func (e *Entry) Validate() error {
	if err := requireString(e.ProjectID, "project_id"); err != nil {
		return err
	}
	if err := requireString(e.Name, "name"); err != nil {
		return err
	}
	if err := requireTimestamp(e.CreatedAt, "created_at"); err != nil {
		return err
	}
	if err := requireTimestamp(e.UpdatedAt, "updated_at"); err != nil {
		return err
	}
	if err := requireString(e.Domain, "domain"); err != nil {
		return err
	}
	if len(e.Platforms) == 0 {
		return fmt.Errorf("registry: platforms must include at least one value")
	}
	for i, p := range e.Platforms {
		if err := requireString(p, fmt.Sprintf("platforms[%d]", i)); err != nil {
			return err
		}
	}
	if err := requireString(e.DefaultBranch, "default_branch"); err != nil {
		return err
	}
	if err := requireString(e.CurrentVersion, "current_version"); err != nil {
		return err
	}
	for i, v := range e.VersionHistory {
		if err := requireString(v, fmt.Sprintf("version_history[%d]", i)); err != nil {
			return err
		}
	}
	if e.LastDeploy != nil {
		if err := requireString(e.LastDeploy.Environment, "last_deploy.environment"); err != nil {
			return err
		}
		if err := requireString(e.LastDeploy.Target, "last_deploy.target"); err != nil {
			return err
		}
		if err := requireString(e.LastDeploy.Version, "last_deploy.version"); err != nil {
			return err
		}
		if err := requireTimestamp(e.LastDeploy.Timestamp, "last_deploy.timestamp"); err != nil {
			return err
		}
	}
	if err := requireString(e.HealthStatus, "health_status"); err != nil {
		return err
	}
	if err := requireString(e.TelemetryPolicy, "telemetry_policy"); err != nil {
		return err
	}
	if err := requireString(e.DataRetentionPolicy, "data_retention_policy"); err != nil {
		return err
	}
	if err := requireString(e.ComplianceProfile, "compliance_profile"); err != nil {
		return err
	}
	if err := requireString(e.CIStatus, "ci_status"); err != nil {
		return err
	}
	if err := requireString(e.SecurityScanStatus, "security_scan_status"); err != nil {
		return err
	}
	return nil
}

// Clone returns a deep copy so updates never alias slices or maps of a
// previously reduced entry.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Platforms = append([]string(nil), e.Platforms...)
	out.VersionHistory = append([]string(nil), e.VersionHistory...)
	out.Environments = append([]string(nil), e.Environments...)
	if e.LastDeploy != nil {
		deploy := *e.LastDeploy
		out.LastDeploy = &deploy
	}
	out.TemplateVersions = make(map[string]int, len(e.TemplateVersions))
	for k, v := range e.TemplateVersions {
		out.TemplateVersions[k] = v
	}
	out.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

func requireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("registry: expected %q to be non-empty", field)
	}
	return nil
}

func requireTimestamp(value, field string) error {
	if err := requireString(value, field); err != nil {
		return err
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return fmt.Errorf("registry: expected %q to be an RFC3339 timestamp: %w", field, err)
	}
	return nil
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
