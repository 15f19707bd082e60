package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/audit"
)

var (
	auditShowProject string
	auditShowAction  string
	auditShowJSON    bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditShowCmd.Flags().StringVar(&auditShowProject, "project", "", "Filter by project id")
	auditShowCmd.Flags().StringVar(&auditShowAction, "action", "", "Filter by action")
	auditShowCmd.Flags().BoolVar(&auditShowJSON, "json", false, "Emit JSON instead of a timeline")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show audit entries as a timeline",
	RunE:  runAuditShow,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path := newApp().cfg.AuditLogPath
	if len(args) == 1 {
		path = args[0]
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	if result.ErrorLine > 0 {
		return fmt.Errorf("audit chain broken at line %d: %s", result.ErrorLine, result.Error)
	}
	return fmt.Errorf("audit verification failed: %s", result.Error)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	a := newApp()
	result, err := audit.History(a.cfg.AuditLogPath, audit.HistoryFilter{
		ProjectID: auditShowProject,
		Action:    auditShowAction,
	})
	if err != nil {
		return err
	}
	if auditShowJSON {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(audit.FormatTimeline(result))
	return nil
}
