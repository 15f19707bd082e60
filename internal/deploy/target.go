// Package deploy dispatches deploy, rollback, and promote operations to
// pluggable deployment targets and folds the outcomes into the
// portfolio registry. Targets are scaffold-first: without execute they
// write configuration and workflow files and never touch real
// infrastructure.
package deploy

import (
	"context"
	"time"
)

// Request carries everything a target needs for one operation.
type Request struct {
	ProjectID   string
	ProjectName string
	Dir         string
	Version     string
	Environment string
	Strategy    string
	Execute     bool
}

// Result is the outcome of one deploy, rollback, or promote call. It is
// never persisted directly; the orchestrator folds it into the
// registry entry.
type Result struct {
	ProjectID    string `json:"project_id"`
	Environment  string `json:"environment"`
	Target       string `json:"target"`
	Success      bool   `json:"success"`
	Version      string `json:"version"`
	Message      string `json:"message"`
	DeployedAt   string `json:"deployed_at"`
	Strategy     string `json:"strategy"`
	ScaffoldOnly bool   `json:"scaffold_only"`
}

// Target is one deployment backend.
type Target interface {
	ID() string
	SupportsCanary() bool
	Deploy(ctx context.Context, req Request) Result
	Rollback(ctx context.Context, req Request) Result
}

func newResult(targetID string, req Request) Result {
	return Result{
		ProjectID:    req.ProjectID,
		Environment:  req.Environment,
		Target:       targetID,
		Version:      req.Version,
		Strategy:     req.Strategy,
		DeployedAt:   time.Now().UTC().Format(time.RFC3339),
		ScaffoldOnly: !req.Execute,
	}
}

func okResult(targetID string, req Request, message string) Result {
	r := newResult(targetID, req)
	r.Success = true
	r.Message = message
	return r
}

func failResult(targetID string, req Request, message string) Result {
	r := newResult(targetID, req)
	r.Message = message
	return r
}
