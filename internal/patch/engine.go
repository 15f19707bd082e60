// Package patch runs the automated maintenance workflow: branch, bump
// the version, regenerate the changelog, run the quality gates, commit,
// and record the outcome in the portfolio registry. Workflow failures
// never propagate; they come back as data inside the outcome.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/autosd/internal/executor"
	"github.com/ppiankov/autosd/internal/gitops"
	"github.com/ppiankov/autosd/internal/quality"
	"github.com/ppiankov/autosd/internal/registry"
)

// Outcome is the result of one patch attempt.
type Outcome struct {
	ProjectID   string `json:"project_id"`
	Branch      string `json:"branch,omitempty"`
	Success     bool   `json:"success"`
	OldVersion  string `json:"old_version,omitempty"`
	NewVersion  string `json:"new_version,omitempty"`
	BumpKind    string `json:"bump_kind,omitempty"`
	CommitSHA   string `json:"commit_sha,omitempty"`
	PendingPush bool   `json:"pending_push"`
	Error       string `json:"error,omitempty"`
}

// Options control push and tag behavior for one patch run.
type Options struct {
	Reason    string
	AutoPush  bool
	CreateTag bool
}

// ClassifyReason maps free-text change reasons to a semver bump kind.
func ClassifyReason(reason string) string {
	lower := strings.ToLower(reason)
	for _, word := range []string{"breaking", "migration", "major"} {
		if strings.Contains(lower, word) {
			return "major"
		}
	}
	for _, word := range []string{"feature", "enhancement", "minor"} {
		if strings.Contains(lower, word) {
			return "minor"
		}
	}
	return "patch"
}

// BumpSemver computes the next version for a bump kind. Anything that
// is not three dot-separated integers resets to "0.1.0".
func BumpSemver(version, kind string) string {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) != 3 {
		return "0.1.0"
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "0.1.0"
		}
		nums[i] = n
	}
	switch kind {
	case "major":
		return fmt.Sprintf("%d.0.0", nums[0]+1)
	case "minor":
		return fmt.Sprintf("%d.%d.0", nums[0], nums[1]+1)
	default:
		return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1)
	}
}

// Engine drives patch workflows against registry projects.
type Engine struct {
	reg  *registry.Registry
	exec *executor.Executor
}

func NewEngine(reg *registry.Registry, exec *executor.Executor) *Engine {
	return &Engine{reg: reg, exec: exec}
}

// PatchProject runs the full workflow for one project. Archived and
// automation-halted projects are skipped without touching git or the
// registry. Every other failure is folded into the outcome and stamps
// ci_status red.
func (e *Engine) PatchProject(ctx context.Context, ref string, opts Options) Outcome {
	entry, err := e.reg.Get(ref)
	if err != nil {
		return Outcome{ProjectID: ref, Error: err.Error()}
	}
	outcome := Outcome{ProjectID: entry.ProjectID, OldVersion: entry.CurrentVersion}
	if entry.Archived {
		outcome.Error = "project is archived"
		return outcome
	}
	if entry.AutomationHalted {
		outcome.Error = "automation is halted for project"
		return outcome
	}

	outcome = e.run(ctx, entry, opts, outcome)
	if err := e.recordOutcome(entry.ProjectID, outcome); err != nil && outcome.Success {
		outcome.Success = false
		outcome.Error = fmt.Sprintf("patched but registry update failed: %v", err)
	}
	return outcome
}

func (e *Engine) run(ctx context.Context, entry *registry.Entry, opts Options, outcome Outcome) Outcome {
	dir, ok := registry.ResolveLocalDir(entry)
	if !ok {
		outcome.Error = "project has no local working directory"
		return outcome
	}

	outcome.BumpKind = ClassifyReason(opts.Reason)
	outcome.NewVersion = BumpSemver(entry.CurrentVersion, outcome.BumpKind)

	git := gitops.NewManager(dir)
	if err := git.EnsureRepository(); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	branch := fmt.Sprintf("autosd/patch-%s-%s", entry.ProjectID, time.Now().UTC().Format("20060102150405"))
	if err := git.CheckoutNewBranch(branch); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Branch = branch

	if err := writeChangelog(dir, entry.ProjectID, outcome.NewVersion, opts.Reason); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if err := updateManifestVersion(dir, outcome.NewVersion); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	results, passed := quality.Run(ctx, e.exec, dir)
	if !passed {
		last := results[len(results)-1]
		outcome.Error = fmt.Sprintf("quality gate %q failed (exit %d)", last.Gate.Name, last.Result.ExitCode)
		return outcome
	}

	tag := ""
	if opts.CreateTag {
		tag = "v" + outcome.NewVersion
	}
	message := fmt.Sprintf("chore(patch): %s (v%s)", opts.Reason, outcome.NewVersion)
	gitResult, err := git.CommitPushTag(message, tag, opts.AutoPush)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.CommitSHA = gitResult.CommitSHA
	outcome.PendingPush = gitResult.PendingPush
	outcome.Success = true
	return outcome
}

// recordOutcome folds the result into the registry.
func (e *Engine) recordOutcome(projectID string, outcome Outcome) error {
	_, err := e.reg.Update(projectID, func(en *registry.Entry) {
		if outcome.Success {
			en.CurrentVersion = outcome.NewVersion
			en.VersionHistory = append(en.VersionHistory, outcome.NewVersion)
			en.CIStatus = "green"
			en.PendingPush = outcome.PendingPush
			delete(en.Metadata, "last_patch_error")
		} else {
			en.CIStatus = "red"
			en.Metadata["last_patch_error"] = outcome.Error
		}
	})
	return err
}

func writeChangelog(dir, projectID, version, reason string) error {
	path := filepath.Join(dir, ".autosd", "changelogs", version+".md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	content := fmt.Sprintf("# %s %s\n\n- %s\n", projectID, version, reason)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	return nil
}

// updateManifestVersion rewrites the version field in whichever build
// manifests are present. Missing manifests are fine; a project may
// track its version only through the registry.
func updateManifestVersion(dir, version string) error {
	type rewrite struct {
		file    string
		pattern string
		replace string
	}
	rewrites := []rewrite{
		{"package.json", `"version":`, fmt.Sprintf(`"version": %q,`, version)},
		{"pyproject.toml", "version =", fmt.Sprintf("version = %q", version)},
	}
	for _, rw := range rewrites {
		path := filepath.Join(dir, rw.file)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		changed := false
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, rw.pattern) && !changed {
				indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
				lines[i] = indent + rw.replace
				changed = true
			}
		}
		if changed {
			if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
				return fmt.Errorf("patch: %w", err)
			}
		}
	}
	return nil
}
