// Package policy resolves a conservative base policy plus an optional
// verified grant into an effective snapshot, and gates individual
// actions against it. The resolver never verifies grants itself — it has
// no access to key material; verification is the caller's job.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/autosd/internal/grant"
)

// Telemetry is the telemetry section of a policy snapshot.
type Telemetry struct {
	Mode          string `yaml:"mode" json:"mode"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// Deployment is the deployment section of a policy snapshot.
type Deployment struct {
	AllowDev             bool `yaml:"allow_dev" json:"allow_dev"`
	AllowStaging         bool `yaml:"allow_staging" json:"allow_staging"`
	AllowProd            bool `yaml:"allow_prod" json:"allow_prod"`
	RequireCanaryForProd bool `yaml:"require_canary_for_prod" json:"require_canary_for_prod"`
}

// GitOps is the gitops section of a policy snapshot.
type GitOps struct {
	AutoPush  bool `yaml:"auto_push" json:"auto_push"`
	AutoMerge bool `yaml:"auto_merge" json:"auto_merge"`
}

// AppStore is the app-store section of a policy snapshot.
type AppStore struct {
	PublishEnabled bool `yaml:"publish_enabled" json:"publish_enabled"`
}

// Budgets caps automated action volume.
type Budgets struct {
	MaxDeploysPerDay      int `yaml:"max_deploys_per_day" json:"max_deploys_per_day"`
	MaxPatchesPerIncident int `yaml:"max_patches_per_incident" json:"max_patches_per_incident"`
	MaxAutoMergesPerDay   int `yaml:"max_auto_merges_per_day" json:"max_auto_merges_per_day"`
	MaxFailuresBeforeHalt int `yaml:"max_failures_before_halt" json:"max_failures_before_halt"`
}

// Snapshot is a resolved, read-only policy view built fresh per request.
// It may be written to disk for observability but is never the source of
// truth.
type Snapshot struct {
	Telemetry  Telemetry  `yaml:"telemetry" json:"telemetry"`
	Deployment Deployment `yaml:"deployment" json:"deployment"`
	GitOps     GitOps     `yaml:"gitops" json:"gitops"`
	AppStore   AppStore   `yaml:"app_store" json:"app_store"`
	Budgets    Budgets    `yaml:"budgets" json:"budgets"`
	GrantID    string     `yaml:"-" json:"grant_id,omitempty"`
}

// Default returns the conservative base policy: prod deploys blocked,
// canary required for prod, auto-push/auto-merge off, telemetry off.
func Default() Snapshot {
	return Snapshot{
		Telemetry: Telemetry{Mode: "off", RetentionDays: 30},
		Deployment: Deployment{
			AllowDev:             true,
			AllowStaging:         true,
			AllowProd:            false,
			RequireCanaryForProd: true,
		},
		GitOps:   GitOps{AutoPush: false, AutoMerge: false},
		AppStore: AppStore{PublishEnabled: false},
		Budgets: Budgets{
			MaxDeploysPerDay:      20,
			MaxPatchesPerIncident: 3,
			MaxAutoMergesPerDay:   10,
			MaxFailuresBeforeHalt: 5,
		},
	}
}

// Load reads the base policy, overlaying YAML from path onto the
// defaults. A missing file returns defaults; invalid YAML is an error.
func Load(path string) (Snapshot, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Snapshot{}, fmt.Errorf("policy: read base policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return Snapshot{}, fmt.Errorf("policy: parse base policy: %w", err)
	}
	return base, nil
}

// Resolve merges the base policy with an already-verified grant's
// capabilities. dev/staging deploys and gitops/app-store switches are
// ANDed with the grant; prod comes solely from the grant. A nil grant
// returns the base unchanged.
func Resolve(base Snapshot, g *grant.Grant) Snapshot {
	if g == nil {
		return base
	}
	out := base
	out.Deployment.AllowDev = base.Deployment.AllowDev && g.Capability("auto_deploy_dev")
	out.Deployment.AllowStaging = base.Deployment.AllowStaging && g.Capability("auto_deploy_staging")
	out.Deployment.AllowProd = g.Capability("auto_deploy_prod")
	out.GitOps.AutoPush = base.GitOps.AutoPush || g.Capability("auto_push")
	out.GitOps.AutoMerge = base.GitOps.AutoMerge || g.Capability("auto_merge_pr")
	out.AppStore.PublishEnabled = base.AppStore.PublishEnabled || g.Capability("publish_app_store")
	out.GrantID = g.GrantID
	return out
}

// Decision is the result of evaluating one action against a snapshot.
type Decision struct {
	Allowed bool
	Reason  string
}

// Action names accepted by Evaluate.
const (
	ActionDeploy          = "deploy"
	ActionAutoPush        = "auto_push"
	ActionAutoMerge       = "auto_merge"
	ActionPublishAppStore = "publish_app_store"
)

// Evaluate gates one action against the snapshot. The environment is
// only meaningful for deploy actions and defaults to dev.
func Evaluate(p Snapshot, action, environment string) Decision {
	switch action {
	case ActionDeploy:
		env := strings.ToLower(strings.TrimSpace(environment))
		if env == "" {
			env = "dev"
		}
		switch env {
		case "prod":
			if !p.Deployment.AllowProd {
				return Decision{Allowed: false, Reason: "prod_deploy_blocked"}
			}
		case "staging":
			if !p.Deployment.AllowStaging {
				return Decision{Allowed: false, Reason: "staging_deploy_blocked"}
			}
		case "dev":
			if !p.Deployment.AllowDev {
				return Decision{Allowed: false, Reason: "dev_deploy_blocked"}
			}
		}
		return Decision{Allowed: true, Reason: "ok"}
	case ActionAutoPush:
		if !p.GitOps.AutoPush {
			return Decision{Allowed: false, Reason: "auto_push_blocked"}
		}
		return Decision{Allowed: true, Reason: "ok"}
	case ActionAutoMerge:
		if !p.GitOps.AutoMerge {
			return Decision{Allowed: false, Reason: "auto_merge_blocked"}
		}
		return Decision{Allowed: true, Reason: "ok"}
	case ActionPublishAppStore:
		if !p.AppStore.PublishEnabled {
			return Decision{Allowed: false, Reason: "app_store_blocked"}
		}
		return Decision{Allowed: true, Reason: "ok"}
	default:
		return Decision{Allowed: false, Reason: "unknown_action"}
	}
}

// WriteSnapshot caches the resolved policy under the project's artifact
// directory. Observability only — nothing reads this back.
func WriteSnapshot(projectDir string, p Snapshot) error {
	path := filepath.Join(projectDir, ".autosd", "policy_resolved.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("policy: create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("policy: write snapshot: %w", err)
	}
	return nil
}
