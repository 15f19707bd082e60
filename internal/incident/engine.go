package incident

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ppiankov/autosd/internal/deploy"
	"github.com/ppiankov/autosd/internal/patch"
	"github.com/ppiankov/autosd/internal/registry"
)

// Detection thresholds. Below both, signals are noise.
const (
	errorThreshold = 5
	crashThreshold = 1
)

// Patcher is the slice of the patch engine healing needs.
type Patcher interface {
	PatchProject(ctx context.Context, ref string, opts patch.Options) patch.Outcome
}

// Deployer is the slice of the deployment orchestrator healing needs.
type Deployer interface {
	Deploy(ctx context.Context, projectRef, environment, targetID, strategy string, execute bool) (deploy.Result, error)
	Rollback(ctx context.Context, projectRef, environment, targetID string, execute bool) (deploy.Result, error)
}

// HealOptions control one healing attempt.
type HealOptions struct {
	IncidentID    string
	AutoPush      bool
	DeployTarget  string
	Environment   string
	ExecuteDeploy bool
}

// HealResult reports everything a healing attempt did.
type HealResult struct {
	Incident *Record        `json:"incident"`
	Patch    patch.Outcome  `json:"patch"`
	Deploy   *deploy.Result `json:"deploy,omitempty"`
	Rollback *deploy.Result `json:"rollback,omitempty"`
	Status   string         `json:"status"`
}

// Engine detects incidents from telemetry signals and heals them.
type Engine struct {
	store    *Store
	reg      *registry.Registry
	patcher  Patcher
	deployer Deployer
}

func NewEngine(store *Store, reg *registry.Registry, patcher Patcher, deployer Deployer) *Engine {
	return &Engine{store: store, reg: reg, patcher: patcher, deployer: deployer}
}

// DetectFromSignals opens an incident when the signal counts cross the
// thresholds. Returns nil when the signals do not warrant one.
func (e *Engine) DetectFromSignals(projectID string, errorCount, crashCount int) (*Record, error) {
	if errorCount < errorThreshold && crashCount < crashThreshold {
		return nil, nil
	}
	severity := "medium"
	if crashCount >= crashThreshold {
		severity = "high"
	}
	now := utcNow()
	rec := &Record{
		IncidentID:    uuid.NewString(),
		ProjectID:     projectID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Source:        "telemetry",
		Severity:      severity,
		Status:        "open",
		SignalSummary: fmt.Sprintf("%d errors, %d crashes in observation window", errorCount, crashCount),
		ProposedFix:   "stabilize error paths and redeploy",
	}
	if err := e.store.Append(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// HealProject drives one healing attempt: patch, then an optional
// canary deploy, with a scaffold-only rollback if the deploy fails.
// Patch and deploy failures are reflected in the returned status, never
// raised.
func (e *Engine) HealProject(ctx context.Context, projectRef string, opts HealOptions) (*HealResult, error) {
	entry, err := e.reg.Get(projectRef)
	if err != nil {
		return nil, err
	}
	rec, err := e.resolveIncident(entry.ProjectID, opts.IncidentID)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("incident %s: %s. %s", rec.IncidentID, rec.SignalSummary, rec.ProposedFix)
	result := &HealResult{Incident: rec}
	result.Patch = e.patcher.PatchProject(ctx, entry.ProjectID, patch.Options{
		Reason:   reason,
		AutoPush: opts.AutoPush,
	})
	rec.PatchSuccess = result.Patch.Success

	deployAttempted := false
	if result.Patch.Success && opts.DeployTarget != "" {
		deployAttempted = true
		env := opts.Environment
		if env == "" {
			env = "staging"
		}
		deployResult, err := e.deployer.Deploy(ctx, entry.ProjectID, env, opts.DeployTarget, "canary", opts.ExecuteDeploy)
		if err != nil {
			deployResult = deploy.Result{ProjectID: entry.ProjectID, Environment: env, Target: opts.DeployTarget, Message: err.Error()}
		}
		result.Deploy = &deployResult
		rec.DeploySuccess = deployResult.Success
		if !deployResult.Success {
			rollbackResult, err := e.deployer.Rollback(ctx, entry.ProjectID, env, opts.DeployTarget, false)
			if err != nil {
				rollbackResult = deploy.Result{ProjectID: entry.ProjectID, Environment: env, Target: opts.DeployTarget, Message: err.Error()}
			}
			result.Rollback = &rollbackResult
		}
	}

	if result.Patch.Success && (!deployAttempted || rec.DeploySuccess) {
		result.Status = "resolved"
	} else {
		result.Status = "failed"
	}
	rec.Status = result.Status
	rec.UpdatedAt = utcNow()

	if path, err := e.writePostmortem(entry, rec, result); err == nil {
		rec.PostmortemPath = path
	}
	if err := e.store.Append(rec); err != nil {
		return result, err
	}
	return result, nil
}

// resolveIncident loads the referenced incident or synthesizes a manual
// one when healing is requested without a detection.
func (e *Engine) resolveIncident(projectID, incidentID string) (*Record, error) {
	if incidentID != "" {
		rec, err := e.store.Get(incidentID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("incident: %q not found", incidentID)
		}
		return rec, nil
	}
	now := utcNow()
	rec := &Record{
		IncidentID:    uuid.NewString(),
		ProjectID:     projectID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Source:        "manual",
		Severity:      "medium",
		Status:        "open",
		SignalSummary: "manual healing requested",
		ProposedFix:   "apply maintenance patch",
	}
	if err := e.store.Append(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) writePostmortem(entry *registry.Entry, rec *Record, result *HealResult) (string, error) {
	dir, ok := registry.ResolveLocalDir(entry)
	if !ok {
		return "", fmt.Errorf("incident: no local directory for postmortem")
	}
	path := filepath.Join(dir, ".autosd", "postmortems", rec.IncidentID+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("incident: %w", err)
	}

	deployLine := "not attempted"
	if result.Deploy != nil {
		deployLine = fmt.Sprintf("success=%t (%s)", result.Deploy.Success, result.Deploy.Message)
	}
	rollbackLine := ""
	if result.Rollback != nil {
		rollbackLine = fmt.Sprintf("- Rollback: success=%t (%s)\n", result.Rollback.Success, result.Rollback.Message)
	}
	content := fmt.Sprintf(`# Postmortem %s

- Project: %s
- Severity: %s
- Source: %s
- Signals: %s
- Proposed fix: %s
- Patch: success=%t (branch %s)
- Deploy: %s
%s- Status: %s
`, rec.IncidentID, rec.ProjectID, rec.Severity, rec.Source, rec.SignalSummary,
		rec.ProposedFix, result.Patch.Success, result.Patch.Branch, deployLine, rollbackLine, result.Status)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("incident: %w", err)
	}
	return path, nil
}
