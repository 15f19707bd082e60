package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/autosd/internal/audit"
	"github.com/ppiankov/autosd/internal/grant"
	"github.com/ppiankov/autosd/internal/policy"
	"github.com/ppiankov/autosd/internal/registry"
)

// gateOptions describe the authorization check in front of one
// privileged operation.
type gateOptions struct {
	Action             string
	Entry              *registry.Entry
	Environment        string
	GrantID            string
	RequirePreauth     bool
	RequiredCapability string
}

// gateContext is what a command gets back after gating. Reason carries
// the block or verification failure code for the audit line.
type gateContext struct {
	Policy policy.Snapshot
	Grant  *grant.Grant
	Reason string
}

// gate verifies the optional grant, resolves the effective policy,
// caches the snapshot beside the project, and evaluates the requested
// action. Authorization and policy failures fail fast, before any
// mutation; the returned context still carries the reason so the
// caller can audit the blocked attempt.
func (a *app) gate(opts gateOptions) (*gateContext, error) {
	ctx := &gateContext{}

	if opts.GrantID == "" && opts.RequirePreauth {
		ctx.Reason = "preauth_required"
		return ctx, fmt.Errorf("pre-authorization required: supply --preauth-grant")
	}

	var g *grant.Grant
	if opts.GrantID != "" {
		projectID := ""
		if opts.Entry != nil {
			projectID = opts.Entry.ProjectID
		}
		res := a.verifier.Verify(opts.GrantID, grant.VerifyOptions{
			RequiredCapability: opts.RequiredCapability,
			ProjectID:          projectID,
			Environment:        opts.Environment,
		})
		ctx.Grant = res.Grant
		if !res.Valid {
			ctx.Reason = res.Reason
			return ctx, fmt.Errorf("grant %q rejected: %s", opts.GrantID, res.Reason)
		}
		g = res.Grant
	}

	base, err := policy.Load(a.cfg.PolicyPath)
	if err != nil {
		ctx.Reason = "policy_load_failed"
		return ctx, err
	}
	resolved := policy.Resolve(base, g)
	resolved.GrantID = opts.GrantID
	ctx.Policy = resolved

	// Snapshot cache is observability only; never fatal.
	if opts.Entry != nil {
		if dir, ok := registry.ResolveLocalDir(opts.Entry); ok {
			_ = policy.WriteSnapshot(dir, resolved)
		}
	}

	// An empty action means the command only needs verification and the
	// resolved policy, not an allow/deny decision.
	if opts.Action != "" {
		decision := policy.Evaluate(resolved, opts.Action, opts.Environment)
		if !decision.Allowed {
			ctx.Reason = decision.Reason
			return ctx, fmt.Errorf("action blocked by policy: %s", decision.Reason)
		}
	}
	return ctx, nil
}

// blockedEntry builds the audit line for an attempt that never reached
// the orchestrator.
func blockedEntry(projectID, action string, gc *gateContext, grantID string) audit.AuditEntry {
	return audit.AuditEntry{
		ProjectID:      projectID,
		Action:         action,
		Result:         audit.ResultBlocked,
		GrantID:        grantID,
		BreakGlassUsed: grant.IsBreakGlass(gc.Grant),
		Details:        map[string]string{"reason": gc.Reason},
	}
}

// recordAudit appends one audit line. An audit write failure is
// reported but never masks the operation's own outcome.
func recordAudit(log *audit.Log, entry audit.AuditEntry) {
	if err := log.Record(entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit write failed: %v\n", err)
	}
}

// confirmDestructive prompts before production-affecting actions unless
// forced. A non-interactive refusal aborts the command.
func confirmDestructive(force bool, prompt string) error {
	if force {
		return nil
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("confirmation required (use --force to skip)")
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return fmt.Errorf("aborted")
	}
	return nil
}

func isBreakGlass(gc *gateContext) bool {
	return grant.IsBreakGlass(gc.Grant)
}
