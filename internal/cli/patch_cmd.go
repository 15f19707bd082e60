package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/audit"
	"github.com/ppiankov/autosd/internal/patch"
	"github.com/ppiankov/autosd/internal/policy"
	"github.com/ppiankov/autosd/internal/registry"
)

var (
	patchProject    string
	patchReason     string
	patchAutoPush   bool
	patchCreateTag  bool
	patchGrantID    string
	patchRequire    bool
	patchDomain     string
	patchPlatform   string
	patchSecNotGrn  bool
	patchNeedsUpgr  bool
	patchTelemetry  bool
	patchDeployedFl bool
)

func init() {
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(patchAllCmd)

	for _, cmd := range []*cobra.Command{patchCmd, patchAllCmd} {
		cmd.Flags().StringVar(&patchReason, "reason", "", "Why the patch is being applied (required)")
		cmd.Flags().BoolVar(&patchAutoPush, "auto-push", false, "Push the patch branch (policy gated)")
		cmd.Flags().BoolVar(&patchCreateTag, "create-tag", false, "Tag the new version")
		cmd.Flags().StringVar(&patchGrantID, "preauth-grant", "", "Capability grant id")
		cmd.Flags().BoolVar(&patchRequire, "require-preauth", false, "Refuse to run without a grant")
		cmd.MarkFlagRequired("reason")
	}
	patchCmd.Flags().StringVar(&patchProject, "project", "", "Project id or name (required)")
	patchCmd.MarkFlagRequired("project")

	patchAllCmd.Flags().StringVar(&patchDomain, "domain", "", "Only projects in this domain")
	patchAllCmd.Flags().StringVar(&patchPlatform, "platform", "", "Only projects on this platform")
	patchAllCmd.Flags().BoolVar(&patchSecNotGrn, "security-not-green", false, "Only projects with failing security scans")
	patchAllCmd.Flags().BoolVar(&patchNeedsUpgr, "needs-upgrade", false, "Only projects flagged needs_upgrade")
	patchAllCmd.Flags().BoolVar(&patchTelemetry, "telemetry-enabled", false, "Only projects with telemetry on")
	patchAllCmd.Flags().BoolVar(&patchDeployedFl, "deployed", false, "Only projects that have deployed at least once")
}

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Run the maintenance patch workflow for one project",
	Long:  "Branches, bumps the version based on the reason text, regenerates the\nchangelog, runs quality gates, commits, and records the outcome in the\nregistry. Failures are reported in the outcome, never half-applied.",
	RunE:  runPatch,
}

var patchAllCmd = &cobra.Command{
	Use:   "patch-all",
	Short: "Patch every matching project",
	Long:  "Applies the patch workflow to all non-archived projects matching the\nfilters. Per-project failures never abort the batch; the exit code is\nnon-zero if any item failed.",
	RunE:  runPatchAll,
}

// patchGate verifies the grant and, when pushing, evaluates the
// auto-push policy.
func patchGate(a *app, entry *registry.Entry) (*gateContext, error) {
	action := ""
	capability := ""
	require := patchRequire
	if patchAutoPush {
		action = policy.ActionAutoPush
		capability = "auto_push"
		// Pushing without a grant is never allowed.
		if patchGrantID == "" {
			require = true
		}
	}
	return a.gate(gateOptions{
		Action:             action,
		Entry:              entry,
		GrantID:            patchGrantID,
		RequirePreauth:     require,
		RequiredCapability: capability,
	})
}

func patchAuditEntry(action string, gc *gateContext, outcome patch.Outcome) audit.AuditEntry {
	tag := ""
	if patchCreateTag && outcome.Success {
		tag = "v" + outcome.NewVersion
	}
	return audit.AuditEntry{
		ProjectID:      outcome.ProjectID,
		Action:         action,
		Result:         audit.ResultFor(outcome.Success),
		GrantID:        patchGrantID,
		GatesRun:       []string{"quality_gates", "version_bump"},
		CommitRef:      outcome.CommitSHA,
		TagRef:         tag,
		BreakGlassUsed: isBreakGlass(gc),
		Details:        map[string]string{"reason": patchReason, "bump": outcome.BumpKind, "error": outcome.Error},
	}
}

func printPatchHeader() {
	fmt.Printf("%-20s %-8s %-10s %-10s %-7s %s\n", "PROJECT", "RESULT", "OLD", "NEW", "PUSH", "DETAIL")
}

func printPatchRow(o patch.Outcome) {
	outcome := "OK"
	detail := o.Branch
	if !o.Success {
		outcome = "FAILED"
		detail = o.Error
	}
	push := "-"
	if o.PendingPush {
		push = "pending"
	}
	fmt.Printf("%-20s %-8s %-10s %-10s %-7s %s\n", o.ProjectID, outcome, o.OldVersion, o.NewVersion, push, detail)
}

func runPatch(cmd *cobra.Command, args []string) error {
	a := newApp()
	log, err := audit.Open(a.cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	entry, err := a.reg.Get(patchProject)
	if err != nil {
		recordAudit(log, audit.AuditEntry{
			ProjectID: patchProject,
			Action:    "patch",
			Result:    audit.ResultFailure,
			GrantID:   patchGrantID,
			Details:   map[string]string{"error": err.Error()},
		})
		return err
	}

	gc, gateErr := patchGate(a, entry)
	if gateErr != nil {
		recordAudit(log, blockedEntry(entry.ProjectID, "patch", gc, patchGrantID))
		return gateErr
	}

	outcome := a.patchEngine().PatchProject(cmd.Context(), entry.ProjectID, patch.Options{
		Reason:    patchReason,
		AutoPush:  patchAutoPush,
		CreateTag: patchCreateTag,
	})

	printPatchHeader()
	printPatchRow(outcome)
	recordAudit(log, patchAuditEntry("patch", gc, outcome))
	if !outcome.Success {
		return fmt.Errorf("patch failed: %s", outcome.Error)
	}
	return nil
}

func runPatchAll(cmd *cobra.Command, args []string) error {
	a := newApp()
	log, err := audit.Open(a.cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	gc, gateErr := patchGate(a, nil)
	if gateErr != nil {
		recordAudit(log, blockedEntry("", "patch_all", gc, patchGrantID))
		return gateErr
	}

	outcomes, err := a.patchEngine().PatchAll(cmd.Context(), patch.Filters{
		Domain:           patchDomain,
		Platform:         patchPlatform,
		SecurityNotGreen: patchSecNotGrn,
		NeedsUpgrade:     patchNeedsUpgr,
		TelemetryEnabled: patchTelemetry,
		Deployed:         patchDeployedFl,
	}, patch.Options{
		Reason:    patchReason,
		AutoPush:  patchAutoPush,
		CreateTag: patchCreateTag,
	})
	if err != nil {
		recordAudit(log, audit.AuditEntry{
			Action:  "patch_all",
			Result:  audit.ResultFailure,
			GrantID: patchGrantID,
			Details: map[string]string{"error": err.Error()},
		})
		return err
	}

	if len(outcomes) == 0 {
		fmt.Println("No projects matched the filters.")
		recordAudit(log, audit.AuditEntry{
			Action:  "patch_all",
			Result:  audit.ResultSuccess,
			GrantID: patchGrantID,
			Details: map[string]string{"matched": "0"},
		})
		return nil
	}

	printPatchHeader()
	failures := 0
	for _, outcome := range outcomes {
		printPatchRow(outcome)
		if !outcome.Success {
			failures++
		}
		recordAudit(log, patchAuditEntry("patch_all_item", gc, outcome))
	}
	if failures > 0 {
		return fmt.Errorf("patch-all: %d of %d projects failed", failures, len(outcomes))
	}
	return nil
}
