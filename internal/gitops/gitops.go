// Package gitops wraps the git operations the patch and release
// workflows need: repository bootstrap, branch management, and the
// commit/push/tag sequence. Pushing is policy-gated by callers; this
// package only reports what it actually did.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Result reports the outcome of a commit/push/tag sequence.
type Result struct {
	Committed   bool   `json:"committed"`
	CommitSHA   string `json:"commit_sha,omitempty"`
	Pushed      bool   `json:"pushed"`
	Tag         string `json:"tag,omitempty"`
	PendingPush bool   `json:"pending_push"`
	Branch      string `json:"branch,omitempty"`
}

// Manager runs git against a single working tree.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = m.dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("git %s: %s", args[0], text)
		}
		return text, fmt.Errorf("git %s: %w", args[0], err)
	}
	return text, nil
}

// EnsureRepository initializes a git repository in the working tree if
// one is not already present, and sets a local commit identity so
// automated commits work on hosts with no global git config.
func (m *Manager) EnsureRepository() error {
	if _, err := os.Stat(filepath.Join(m.dir, ".git")); err == nil {
		return m.ensureLocalIdentity()
	}
	if _, err := m.git("init"); err != nil {
		return err
	}
	return m.ensureLocalIdentity()
}

func (m *Manager) ensureLocalIdentity() error {
	if _, err := m.git("config", "user.email"); err != nil {
		if _, err := m.git("config", "user.email", "autosd@local.invalid"); err != nil {
			return err
		}
	}
	if _, err := m.git("config", "user.name"); err != nil {
		if _, err := m.git("config", "user.name", "AutoSD Bot"); err != nil {
			return err
		}
	}
	return nil
}

// CurrentBranch returns the checked-out branch name, or "" for a
// detached HEAD or an unborn branch.
func (m *Manager) CurrentBranch() string {
	out, err := m.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || out == "HEAD" {
		return ""
	}
	return out
}

// CurrentCommit returns the HEAD commit SHA, or "" before the first
// commit.
func (m *Manager) CurrentCommit() string {
	out, err := m.git("rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// CheckoutNewBranch creates and checks out a branch. If the branch
// already exists it is checked out and reset to HEAD.
func (m *Manager) CheckoutNewBranch(name string) error {
	_, err := m.git("checkout", "-B", name)
	return err
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (m *Manager) HasChanges() bool {
	out, err := m.git("status", "--porcelain")
	return err == nil && out != ""
}

// HasRemote reports whether an "origin" remote is configured.
func (m *Manager) HasRemote() bool {
	_, err := m.git("remote", "get-url", "origin")
	return err == nil
}

// CommitPushTag stages everything, commits when the tree is dirty, and
// optionally pushes and tags. A commit that could not be pushed is
// reported as pending so callers can surface it instead of losing it.
func (m *Manager) CommitPushTag(message, tag string, push bool) (Result, error) {
	result := Result{Branch: m.CurrentBranch()}

	if _, err := m.git("add", "-A"); err != nil {
		return result, err
	}
	if m.HasChanges() {
		if _, err := m.git("commit", "-m", message); err != nil {
			return result, err
		}
		result.Committed = true
	}
	result.CommitSHA = m.CurrentCommit()

	if push {
		if !m.HasRemote() {
			return result, fmt.Errorf("push requested but no 'origin' remote is configured for repository")
		}
		if result.Branch == "" {
			return result, fmt.Errorf("push requested but current branch could not be resolved")
		}
		if _, err := m.git("push", "-u", "origin", result.Branch); err != nil {
			return result, err
		}
		result.Pushed = true
	}
	if result.Committed && !result.Pushed {
		result.PendingPush = true
	}

	if tag != "" && result.CommitSHA != "" {
		if _, err := m.git("tag", "-f", tag, result.CommitSHA); err != nil {
			return result, err
		}
		result.Tag = tag
		if result.Pushed {
			if _, err := m.git("push", "origin", tag); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}
