package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/grant"
	"github.com/ppiankov/autosd/internal/policy"
	"github.com/ppiankov/autosd/internal/registry"
)

var (
	policyProject string
	policyGrantID string
	policyEnv     string
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyShowCmd.Flags().StringVar(&policyProject, "project", "", "Project id or name for scope checks")
	policyShowCmd.Flags().StringVar(&policyGrantID, "preauth-grant", "", "Grant id to resolve against")
	policyShowCmd.Flags().StringVar(&policyEnv, "env", "", "Environment for the grant check")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Effective policy inspection",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved policy snapshot",
	Long:  "Resolves the base policy, optionally elevated by a verified grant,\nand prints the effective snapshot as JSON. An invalid grant falls\nback to the base policy and reports why.",
	RunE:  runPolicyShow,
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	a := newApp()
	base, err := policy.Load(a.cfg.PolicyPath)
	if err != nil {
		return err
	}

	var entry *registry.Entry
	if policyProject != "" {
		entry, err = a.reg.Get(policyProject)
		if err != nil {
			return err
		}
	}

	var g *grant.Grant
	if policyGrantID != "" {
		projectID := ""
		if entry != nil {
			projectID = entry.ProjectID
		}
		res := a.verifier.Verify(policyGrantID, grant.VerifyOptions{
			ProjectID:   projectID,
			Environment: policyEnv,
		})
		if res.Valid {
			g = res.Grant
		} else {
			fmt.Printf("Grant %s not applied: %s\n", policyGrantID, res.Reason)
		}
	}

	resolved := policy.Resolve(base, g)
	if g != nil {
		resolved.GrantID = policyGrantID
	}
	if entry != nil {
		if dir, ok := registry.ResolveLocalDir(entry); ok {
			_ = policy.WriteSnapshot(dir, resolved)
		}
	}
	out, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
