package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/grant"
)

var (
	preauthForceKeys  bool
	preauthIssuer     string
	preauthProjectIDs string
	preauthDomains    []string
	preauthPlatforms  []string
	preauthDeployDev  bool
	preauthDeployStg  bool
	preauthDeployProd bool
	preauthAutoPush   bool
	preauthAutoMerge  bool
	preauthRollback   bool
	preauthAutoHeal   bool
	preauthPublish    bool
	preauthExpiresIn  int
	preauthBreakGlass bool
	preauthActiveOnly bool
	preauthRevokeNote string
)

func init() {
	rootCmd.AddCommand(preauthCmd)
	preauthCmd.AddCommand(preauthInitKeysCmd)
	preauthCmd.AddCommand(preauthRotateKeysCmd)
	preauthCmd.AddCommand(preauthCreateGrantCmd)
	preauthCmd.AddCommand(preauthListCmd)
	preauthCmd.AddCommand(preauthShowCmd)
	preauthCmd.AddCommand(preauthRevokeCmd)

	preauthInitKeysCmd.Flags().BoolVar(&preauthForceKeys, "force", false, "Overwrite an existing keypair")

	preauthCreateGrantCmd.Flags().StringVar(&preauthIssuer, "issuer", "operator", "Grant issuer")
	preauthCreateGrantCmd.Flags().StringVar(&preauthProjectIDs, "project-ids", "*", "Comma-separated project ids, or * for all")
	preauthCreateGrantCmd.Flags().StringSliceVar(&preauthDomains, "domains", nil, "Allowed project domains")
	preauthCreateGrantCmd.Flags().StringSliceVar(&preauthPlatforms, "platforms", nil, "Allowed platforms")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthDeployDev, "auto-deploy-dev", false, "Allow automated dev deploys")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthDeployStg, "auto-deploy-staging", false, "Allow automated staging deploys")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthDeployProd, "auto-deploy-prod", false, "Allow automated prod deploys")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthAutoPush, "auto-push", false, "Allow automated git pushes")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthAutoMerge, "auto-merge-pr", false, "Allow automated PR merges")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthRollback, "auto-rollback", false, "Allow automated rollbacks")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthAutoHeal, "auto-heal", false, "Allow automated incident healing")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthPublish, "publish-app-store", false, "Allow app store publishing")
	preauthCreateGrantCmd.Flags().IntVar(&preauthExpiresIn, "expires-in-hours", 24, "Grant lifetime in hours")
	preauthCreateGrantCmd.Flags().BoolVar(&preauthBreakGlass, "break-glass", false, "Emergency grant (max 2h lifetime)")

	preauthListCmd.Flags().BoolVar(&preauthActiveOnly, "active-only", false, "Hide expired and revoked grants")

	preauthRevokeCmd.Flags().StringVar(&preauthRevokeNote, "reason", "", "Reason recorded in the revocation ledger")
}

var preauthCmd = &cobra.Command{
	Use:   "preauth",
	Short: "Signing keys and capability grants",
	Long:  "Manages the Ed25519 signing keypair and the signed capability grants\nthat pre-authorize automated fleet actions.",
}

var preauthInitKeysCmd = &cobra.Command{
	Use:   "init-keys",
	Short: "Generate the grant signing keypair",
	RunE:  runPreauthInitKeys,
}

var preauthRotateKeysCmd = &cobra.Command{
	Use:   "rotate-keys",
	Short: "Rotate the signing keypair, archiving the old public key",
	Long:  "Archives the current public key under a timestamped name before\ngenerating a new pair. Grants signed before rotation keep verifying\nagainst the archive.",
	RunE:  runPreauthRotateKeys,
}

var preauthCreateGrantCmd = &cobra.Command{
	Use:   "create-grant",
	Short: "Create and sign a capability grant",
	RunE:  runPreauthCreateGrant,
}

var preauthListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored grants",
	RunE:  runPreauthList,
}

var preauthShowCmd = &cobra.Command{
	Use:   "show <grant-id>",
	Short: "Print one grant as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreauthShow,
}

var preauthRevokeCmd = &cobra.Command{
	Use:   "revoke <grant-id>",
	Short: "Revoke a grant via the revocation ledger",
	Long:  "Appends a revocation record. The grant file itself is never edited\nor deleted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreauthRevoke,
}

func runPreauthInitKeys(cmd *cobra.Command, args []string) error {
	a := newApp()
	if err := a.keys.Init(preauthForceKeys); err != nil {
		return err
	}
	fmt.Printf("Keypair written under %s\n", a.cfg.PreauthHome)
	return nil
}

func runPreauthRotateKeys(cmd *cobra.Command, args []string) error {
	a := newApp()
	if err := a.keys.Rotate(); err != nil {
		return err
	}
	fmt.Println("Keys rotated. Previous public key archived; existing grants still verify.")
	return nil
}

func runPreauthCreateGrant(cmd *cobra.Command, args []string) error {
	a := newApp()
	key, err := a.keys.LoadPrivate()
	if err != nil {
		return err
	}

	scope := grant.Scope{Domains: preauthDomains, Platforms: preauthPlatforms}
	ids := strings.TrimSpace(preauthProjectIDs)
	if ids == "*" || ids == "" {
		scope.ProjectIDs = grant.ProjectScope{Wildcard: true}
	} else {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				scope.ProjectIDs.IDs = append(scope.ProjectIDs.IDs, id)
			}
		}
	}

	g, err := a.authority.Create(grant.CreateParams{
		Issuer: preauthIssuer,
		Scope:  scope,
		Capabilities: map[string]bool{
			"auto_deploy_dev":     preauthDeployDev,
			"auto_deploy_staging": preauthDeployStg,
			"auto_deploy_prod":    preauthDeployProd,
			"auto_push":           preauthAutoPush,
			"auto_merge_pr":       preauthAutoMerge,
			"auto_rollback":       preauthRollback,
			"auto_heal":           preauthAutoHeal,
			"publish_app_store":   preauthPublish,
		},
		ExpiresInHours: preauthExpiresIn,
		BreakGlass:     preauthBreakGlass,
	}, key)
	if err != nil {
		return err
	}
	path, err := a.authority.Save(g)
	if err != nil {
		return err
	}

	fmt.Printf("Grant created: %s\n", g.GrantID)
	fmt.Printf("Expires: %s\n", g.ExpiresAt)
	fmt.Printf("Saved:   %s\n", path)
	if g.BreakGlass {
		fmt.Println("Break-glass grant: use only for emergency operations.")
	}
	return nil
}

func runPreauthList(cmd *cobra.Command, args []string) error {
	a := newApp()
	grants, err := a.authority.List()
	if err != nil {
		return err
	}
	revoked, err := a.authority.RevokedIDs()
	if err != nil {
		return err
	}

	if len(grants) == 0 {
		fmt.Println("No grants.")
		return nil
	}

	now := time.Now().UTC()
	fmt.Printf("%-38s %-9s %-12s %-25s %s\n", "GRANT", "STATUS", "ISSUER", "EXPIRES", "SCOPE")
	for _, g := range grants {
		status := "active"
		switch {
		case revoked[g.GrantID]:
			status = "revoked"
		case g.IsExpired(now):
			status = "expired"
		}
		if preauthActiveOnly && status != "active" {
			continue
		}
		scope := "*"
		if !g.Scope.ProjectIDs.Wildcard {
			scope = strings.Join(g.Scope.ProjectIDs.IDs, ",")
		}
		fmt.Printf("%-38s %-9s %-12s %-25s %s\n", g.GrantID, status, g.Issuer, g.ExpiresAt, scope)
	}
	return nil
}

func runPreauthShow(cmd *cobra.Command, args []string) error {
	a := newApp()
	g, err := a.authority.Get(args[0])
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("grant %q not found", args[0])
	}
	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPreauthRevoke(cmd *cobra.Command, args []string) error {
	a := newApp()
	if err := a.authority.Revoke(args[0], preauthRevokeNote); err != nil {
		return err
	}
	fmt.Printf("Grant %s revoked.\n", args[0])
	return nil
}
