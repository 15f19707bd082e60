package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/autosd/internal/registry"
)

// DefaultStrategy is used when no strategy is requested or when the
// chosen target cannot honor the requested one.
const DefaultStrategy = "standard"

// ErrNoLocalPath is returned when a project entry carries no resolvable
// local working directory.
var ErrNoLocalPath = fmt.Errorf("deploy: project has no local working directory (set local_path in metadata)")

// ErrUnknownTarget is returned when no registered target matches the
// requested id.
var ErrUnknownTarget = fmt.Errorf("deploy: unknown target")

// Orchestrator routes operations to targets and records outcomes in
// the registry. Target command failures are reported in the result,
// not raised; only lookup failures return errors.
type Orchestrator struct {
	reg     *registry.Registry
	targets map[string]Target
}

func NewOrchestrator(reg *registry.Registry, targets ...Target) *Orchestrator {
	byID := make(map[string]Target, len(targets))
	for _, t := range targets {
		byID[t.ID()] = t
	}
	return &Orchestrator{reg: reg, targets: byID}
}

// TargetIDs returns the registered target ids, sorted.
func (o *Orchestrator) TargetIDs() []string {
	ids := make([]string, 0, len(o.targets))
	for id := range o.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) target(id string) (Target, error) {
	t, ok := o.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownTarget, id, strings.Join(o.TargetIDs(), ", "))
	}
	return t, nil
}

func (o *Orchestrator) resolve(projectRef, targetID string) (*registry.Entry, Target, string, error) {
	entry, err := o.reg.Get(projectRef)
	if err != nil {
		return nil, nil, "", err
	}
	t, err := o.target(targetID)
	if err != nil {
		return nil, nil, "", err
	}
	dir, ok := registry.ResolveLocalDir(entry)
	if !ok {
		return nil, nil, "", ErrNoLocalPath
	}
	return entry, t, dir, nil
}

func normalizeStrategy(strategy string, t Target) string {
	if strategy == "" {
		return DefaultStrategy
	}
	if (strategy == "canary" || strategy == "blue-green") && !t.SupportsCanary() {
		return DefaultStrategy
	}
	return strategy
}

// Deploy runs a deployment and, on success, marks the project healthy,
// records last_deploy, and tracks the environment.
func (o *Orchestrator) Deploy(ctx context.Context, projectRef, environment, targetID, strategy string, execute bool) (Result, error) {
	entry, t, dir, err := o.resolve(projectRef, targetID)
	if err != nil {
		return Result{}, err
	}
	req := Request{
		ProjectID:   entry.ProjectID,
		ProjectName: entry.Name,
		Dir:         dir,
		Version:     entry.CurrentVersion,
		Environment: environment,
		Strategy:    normalizeStrategy(strategy, t),
		Execute:     execute,
	}
	result := t.Deploy(ctx, req)
	if result.Success {
		_, err = o.reg.Update(entry.ProjectID, func(e *registry.Entry) {
			e.HealthStatus = "healthy"
			e.LastDeploy = &registry.DeployRecord{
				Environment: result.Environment,
				Target:      result.Target,
				Version:     result.Version,
				Timestamp:   result.DeployedAt,
			}
			if !contains(e.Environments, environment) {
				e.Environments = append(e.Environments, environment)
			}
			e.Metadata["last_deploy_strategy"] = result.Strategy
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// Rollback runs a target rollback and marks the project degraded on
// success so healing can pick it up.
func (o *Orchestrator) Rollback(ctx context.Context, projectRef, environment, targetID string, execute bool) (Result, error) {
	entry, t, dir, err := o.resolve(projectRef, targetID)
	if err != nil {
		return Result{}, err
	}
	req := Request{
		ProjectID:   entry.ProjectID,
		ProjectName: entry.Name,
		Dir:         dir,
		Version:     entry.CurrentVersion,
		Environment: environment,
		Strategy:    DefaultStrategy,
		Execute:     execute,
	}
	result := t.Rollback(ctx, req)
	if result.Success {
		_, err = o.reg.Update(entry.ProjectID, func(e *registry.Entry) {
			e.HealthStatus = "degraded"
			e.Metadata["last_rollback_at"] = time.Now().UTC().Format(time.RFC3339)
			e.Metadata["last_rollback_env"] = environment
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// Promote deploys into the target environment. The source environment
// is informational only; it shows up in the audit trail, not here.
func (o *Orchestrator) Promote(ctx context.Context, projectRef, targetEnvironment, targetID, strategy string, execute bool) (Result, error) {
	return o.Deploy(ctx, projectRef, targetEnvironment, targetID, strategy, execute)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
