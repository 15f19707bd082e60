package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/audit"
	"github.com/ppiankov/autosd/internal/deploy"
	"github.com/ppiankov/autosd/internal/policy"
)

var (
	releaseProject  string
	releaseEnv      string
	releaseTarget   string
	releaseStrategy string
	releaseExecute  bool
	releaseGrantID  string
	releaseRequire  bool
	releaseForce    bool
	promoteFromEnv  string
	promoteToEnv    string
)

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(promoteCmd)

	for _, cmd := range []*cobra.Command{deployCmd, rollbackCmd, promoteCmd} {
		cmd.Flags().StringVar(&releaseProject, "project", "", "Project id or name (required)")
		cmd.Flags().StringVar(&releaseTarget, "target", "docker", "Deployment target")
		cmd.Flags().BoolVar(&releaseExecute, "execute", false, "Touch real infrastructure instead of scaffolding")
		cmd.Flags().StringVar(&releaseGrantID, "preauth-grant", "", "Capability grant id")
		cmd.Flags().BoolVar(&releaseRequire, "require-preauth", false, "Refuse to run without a grant")
		cmd.Flags().BoolVar(&releaseForce, "force", false, "Skip the confirmation prompt")
		cmd.MarkFlagRequired("project")
	}
	deployCmd.Flags().StringVar(&releaseEnv, "env", "dev", "Target environment (dev|staging|prod)")
	deployCmd.Flags().StringVar(&releaseStrategy, "strategy", "", "Rollout strategy (standard|canary|blue-green)")
	rollbackCmd.Flags().StringVar(&releaseEnv, "env", "dev", "Environment to roll back")
	promoteCmd.Flags().StringVar(&promoteFromEnv, "from", "staging", "Source environment (informational)")
	promoteCmd.Flags().StringVar(&promoteToEnv, "to", "prod", "Target environment")
	promoteCmd.Flags().StringVar(&releaseStrategy, "strategy", "", "Rollout strategy")
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a project to an environment",
	Long:  "Verifies the grant, resolves policy, and dispatches to the deployment\ntarget. Targets scaffold by default; --execute touches real\ninfrastructure. Production deploys prompt unless --force.",
	RunE:  runDeploy,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back a project in an environment",
	RunE:  runRollback,
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote a project between environments",
	Long:  "Deploys the project into the target environment. The source\nenvironment is recorded in the audit trail only.",
	RunE:  runPromote,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	return runRelease(cmd.Context(), "deploy", releaseEnv, releaseStrategy, nil)
}

func runRollback(cmd *cobra.Command, args []string) error {
	return runRelease(cmd.Context(), "rollback", releaseEnv, "", nil)
}

func runPromote(cmd *cobra.Command, args []string) error {
	details := map[string]string{"from": promoteFromEnv, "to": promoteToEnv}
	return runRelease(cmd.Context(), "promote", promoteToEnv, releaseStrategy, details)
}

// runRelease is the shared deploy/rollback/promote path: gate, confirm,
// orchestrate, print, audit exactly once.
func runRelease(ctx context.Context, action, environment, strategy string, details map[string]string) error {
	a := newApp()
	log, err := audit.Open(a.cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	entry, err := a.reg.Get(releaseProject)
	if err != nil {
		recordAudit(log, audit.AuditEntry{
			ProjectID: releaseProject,
			Action:    action,
			Result:    audit.ResultFailure,
			GrantID:   releaseGrantID,
			Details:   map[string]string{"error": err.Error()},
		})
		return err
	}

	// Prod deploys and promotions always require a grant. Rollback is the
	// recovery path: the grant is checked when supplied, but no policy
	// action is evaluated so a bad prod deploy can always be rolled back.
	capability := ""
	gateAction := policy.ActionDeploy
	requirePreauth := releaseRequire
	if action == "rollback" {
		capability = "auto_rollback"
		gateAction = ""
	} else if environment == "prod" {
		requirePreauth = true
	}
	gc, gateErr := a.gate(gateOptions{
		Action:             gateAction,
		Entry:              entry,
		Environment:        environment,
		GrantID:            releaseGrantID,
		RequirePreauth:     requirePreauth,
		RequiredCapability: capability,
	})
	if gateErr != nil {
		recordAudit(log, blockedEntry(entry.ProjectID, action, gc, releaseGrantID))
		return gateErr
	}

	if environment == "prod" || action == "rollback" {
		prompt := fmt.Sprintf("%s %s in %s", action, entry.ProjectID, environment)
		if err := confirmDestructive(releaseForce, prompt); err != nil {
			recordAudit(log, audit.AuditEntry{
				ProjectID:      entry.ProjectID,
				Action:         action,
				Result:         audit.ResultBlocked,
				GrantID:        releaseGrantID,
				BreakGlassUsed: isBreakGlass(gc),
				Details:        map[string]string{"reason": "not_confirmed"},
			})
			return err
		}
	}

	orch := a.orchestrator()
	var result deploy.Result
	var opErr error
	gates := []string{"deployment_policy", "target_scaffold"}
	switch action {
	case "rollback":
		gates = []string{"rollback_marker"}
		result, opErr = orch.Rollback(ctx, entry.ProjectID, environment, releaseTarget, releaseExecute)
	case "promote":
		gates = []string{"deployment_policy", "promotion"}
		result, opErr = orch.Promote(ctx, entry.ProjectID, environment, releaseTarget, strategy, releaseExecute)
	default:
		result, opErr = orch.Deploy(ctx, entry.ProjectID, environment, releaseTarget, strategy, releaseExecute)
	}
	if opErr != nil {
		recordAudit(log, audit.AuditEntry{
			ProjectID:      entry.ProjectID,
			Action:         action,
			Result:         audit.ResultFailure,
			GrantID:        releaseGrantID,
			GatesRun:       gates,
			BreakGlassUsed: isBreakGlass(gc),
			Details:        mergeDetails(details, map[string]string{"error": opErr.Error()}),
		})
		return opErr
	}

	printReleaseResult(action, result)
	recordAudit(log, audit.AuditEntry{
		ProjectID:      entry.ProjectID,
		Action:         action,
		Result:         audit.ResultFor(result.Success),
		GrantID:        releaseGrantID,
		GatesRun:       gates,
		BreakGlassUsed: isBreakGlass(gc),
		Details:        mergeDetails(details, map[string]string{"message": result.Message, "strategy": result.Strategy}),
	})
	if !result.Success {
		return fmt.Errorf("%s failed: %s", action, result.Message)
	}
	return nil
}

func printReleaseResult(action string, r deploy.Result) {
	outcome := "OK"
	if !r.Success {
		outcome = "FAILED"
	}
	mode := "scaffold"
	if !r.ScaffoldOnly {
		mode = "executed"
	}
	fmt.Printf("%-20s %-9s %-18s %-9s %-9s %-9s %s\n", "PROJECT", "ACTION", "TARGET", "ENV", "RESULT", "MODE", "MESSAGE")
	fmt.Printf("%-20s %-9s %-18s %-9s %-9s %-9s %s\n",
		r.ProjectID, action, r.Target, r.Environment, outcome, mode, r.Message)
}

func mergeDetails(base, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
