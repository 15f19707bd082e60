package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/audit"
	"github.com/ppiankov/autosd/internal/incident"
	"github.com/ppiankov/autosd/internal/policy"
)

var (
	incidentProject string
	incidentFilter  string
	incidentErrors  int
	incidentCrashes int
	healProject     string
	healIncidentID  string
	healTarget      string
	healEnv         string
	healAutoPush    bool
	healExecute     bool
	healGrantID     string
	healRequire     bool
)

func init() {
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(healCmd)
	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsShowCmd)
	incidentsCmd.AddCommand(incidentsDetectCmd)

	incidentsListCmd.Flags().StringVar(&incidentFilter, "project", "", "Only incidents for this project id")
	incidentsDetectCmd.Flags().StringVar(&incidentProject, "project", "", "Project id or name (required)")
	incidentsDetectCmd.Flags().IntVar(&incidentErrors, "errors", 0, "Error count in the observation window")
	incidentsDetectCmd.Flags().IntVar(&incidentCrashes, "crashes", 0, "Crash count in the observation window")
	incidentsDetectCmd.MarkFlagRequired("project")

	healCmd.Flags().StringVar(&healProject, "project", "", "Project id or name (required)")
	healCmd.Flags().StringVar(&healIncidentID, "incident", "", "Incident id to heal (synthesized when empty)")
	healCmd.Flags().StringVar(&healTarget, "target", "", "Deploy target after a successful patch")
	healCmd.Flags().StringVar(&healEnv, "env", "staging", "Environment for the healing deploy")
	healCmd.Flags().BoolVar(&healAutoPush, "auto-push", false, "Push the healing patch branch")
	healCmd.Flags().BoolVar(&healExecute, "execute-deploy", false, "Execute the healing deploy for real")
	healCmd.Flags().StringVar(&healGrantID, "preauth-grant", "", "Capability grant id")
	healCmd.Flags().BoolVar(&healRequire, "require-preauth", false, "Refuse to run without a grant")
	healCmd.MarkFlagRequired("project")
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Incident ledger operations",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents (latest state per id)",
	RunE:  runIncidentsList,
}

var incidentsShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Show one incident record",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsShow,
}

var incidentsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Open an incident from telemetry signals",
	Long:  "Opens an incident when the error or crash counts cross the detection\nthresholds. Below both thresholds nothing is recorded.",
	RunE:  runIncidentsDetect,
}

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Heal a project: patch, canary deploy, rollback safety net",
	Long:  "Resolves or synthesizes an incident, applies a patch built from its\nsignals, optionally canary-deploys, and rolls back (scaffold only) if\nthe deploy fails. The incident status reflects the overall outcome.",
	RunE:  runHeal,
}

func runIncidentsList(cmd *cobra.Command, args []string) error {
	a := newApp()
	records, err := a.incidentStore().List()
	if err != nil {
		return err
	}
	if incidentFilter != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.ProjectID == incidentFilter {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if len(records) == 0 {
		fmt.Println("No incidents.")
		return nil
	}
	fmt.Printf("%-38s %-20s %-9s %-9s %s\n", "INCIDENT", "PROJECT", "SEVERITY", "STATUS", "SIGNALS")
	for _, rec := range records {
		fmt.Printf("%-38s %-20s %-9s %-9s %s\n",
			rec.IncidentID, rec.ProjectID, rec.Severity, rec.Status, rec.SignalSummary)
	}
	return nil
}

func runIncidentsShow(cmd *cobra.Command, args []string) error {
	a := newApp()
	rec, err := a.incidentStore().Get(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("incident %q not found", args[0])
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runIncidentsDetect(cmd *cobra.Command, args []string) error {
	a := newApp()
	entry, err := a.reg.Get(incidentProject)
	if err != nil {
		return err
	}
	rec, err := a.incidentEngine().DetectFromSignals(entry.ProjectID, incidentErrors, incidentCrashes)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("Signals below detection thresholds; no incident opened.")
		return nil
	}
	fmt.Printf("Incident opened: %s (severity %s)\n", rec.IncidentID, rec.Severity)
	return nil
}

func runHeal(cmd *cobra.Command, args []string) error {
	a := newApp()
	log, err := audit.Open(a.cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer log.Close()

	entry, err := a.reg.Get(healProject)
	if err != nil {
		recordAudit(log, audit.AuditEntry{
			ProjectID: healProject,
			Action:    "heal",
			Result:    audit.ResultFailure,
			GrantID:   healGrantID,
			Details:   map[string]string{"error": err.Error()},
		})
		return err
	}

	healDeployEnv := ""
	if healTarget != "" {
		healDeployEnv = healEnv
	}
	gc, gateErr := a.gate(gateOptions{
		Entry:              entry,
		Environment:        healDeployEnv,
		GrantID:            healGrantID,
		RequirePreauth:     healRequire,
		RequiredCapability: healCapability(),
	})
	if gateErr != nil {
		recordAudit(log, blockedEntry(entry.ProjectID, "heal", gc, healGrantID))
		return gateErr
	}

	// The healing deploy and push are still policy-gated even though the
	// gate above carried no single action.
	if healAutoPush {
		if d := policy.Evaluate(gc.Policy, policy.ActionAutoPush, ""); !d.Allowed {
			gc.Reason = d.Reason
			recordAudit(log, blockedEntry(entry.ProjectID, "heal", gc, healGrantID))
			return fmt.Errorf("healing auto-push blocked by policy: %s", d.Reason)
		}
	}
	if healTarget != "" {
		if d := policy.Evaluate(gc.Policy, policy.ActionDeploy, healEnv); !d.Allowed {
			gc.Reason = d.Reason
			recordAudit(log, blockedEntry(entry.ProjectID, "heal", gc, healGrantID))
			return fmt.Errorf("healing deploy blocked by policy: %s", d.Reason)
		}
	}

	result, err := a.incidentEngine().HealProject(cmd.Context(), entry.ProjectID, incident.HealOptions{
		IncidentID:    healIncidentID,
		AutoPush:      healAutoPush,
		DeployTarget:  healTarget,
		Environment:   healEnv,
		ExecuteDeploy: healExecute,
	})
	if err != nil {
		recordAudit(log, audit.AuditEntry{
			ProjectID:      entry.ProjectID,
			Action:         "heal",
			Result:         audit.ResultFailure,
			GrantID:        healGrantID,
			BreakGlassUsed: isBreakGlass(gc),
			Details:        map[string]string{"error": err.Error()},
		})
		return err
	}

	printHealResult(result)

	gates := []string{"patch"}
	if result.Deploy != nil {
		gates = append(gates, "deploy")
	} else {
		gates = append(gates, "patch_only")
	}
	recordAudit(log, audit.AuditEntry{
		ProjectID:      entry.ProjectID,
		Action:         "heal",
		Result:         audit.ResultFor(result.Status == "resolved"),
		GrantID:        healGrantID,
		GatesRun:       gates,
		CommitRef:      result.Patch.CommitSHA,
		BreakGlassUsed: isBreakGlass(gc),
		Details: map[string]string{
			"incident": result.Incident.IncidentID,
			"status":   result.Status,
		},
	})
	if result.Status != "resolved" {
		return fmt.Errorf("healing failed for %s (incident %s)", entry.ProjectID, result.Incident.IncidentID)
	}
	return nil
}

// healCapability is auto_heal when a grant is supplied; healing without
// a grant relies on base policy alone.
func healCapability() string {
	if healGrantID == "" {
		return ""
	}
	return "auto_heal"
}

func printHealResult(result *incident.HealResult) {
	fmt.Printf("Incident: %s (%s)\n", result.Incident.IncidentID, result.Incident.Severity)
	fmt.Printf("Patch:    success=%t", result.Patch.Success)
	if result.Patch.Branch != "" {
		fmt.Printf(" branch=%s", result.Patch.Branch)
	}
	if result.Patch.Error != "" {
		fmt.Printf(" error=%q", result.Patch.Error)
	}
	fmt.Println()
	if result.Deploy != nil {
		fmt.Printf("Deploy:   success=%t target=%s env=%s\n", result.Deploy.Success, result.Deploy.Target, result.Deploy.Environment)
	}
	if result.Rollback != nil {
		fmt.Printf("Rollback: success=%t (scaffold)\n", result.Rollback.Success)
	}
	if result.Incident.PostmortemPath != "" {
		fmt.Printf("Postmortem: %s\n", result.Incident.PostmortemPath)
	}
	fmt.Printf("Status:   %s\n", result.Status)
}
