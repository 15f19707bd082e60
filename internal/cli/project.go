package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/registry"
)

var (
	projectName      string
	projectDomain    string
	projectPlatforms []string
	projectRepoURL   string
	projectLocalPath string
	projectRetireWhy string
	projectListAll   bool
)

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectRegisterCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectRetireCmd)

	projectRegisterCmd.Flags().StringVar(&projectName, "name", "", "Human-readable project name (required)")
	projectRegisterCmd.Flags().StringVar(&projectDomain, "domain", "general", "Project domain")
	projectRegisterCmd.Flags().StringSliceVar(&projectPlatforms, "platforms", []string{"docker"}, "Deployment platforms")
	projectRegisterCmd.Flags().StringVar(&projectRepoURL, "repo-url", "", "Remote repository URL")
	projectRegisterCmd.Flags().StringVar(&projectLocalPath, "local-path", "", "Local working directory")
	projectRegisterCmd.MarkFlagRequired("name")

	projectRetireCmd.Flags().StringVar(&projectRetireWhy, "reason", "", "Why the project is being retired")
	projectListCmd.Flags().BoolVar(&projectListAll, "all", false, "Include archived projects")
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Portfolio registry operations",
}

var projectRegisterCmd = &cobra.Command{
	Use:   "register <project-id>",
	Short: "Register a new project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRegister,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active projects",
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Print one project entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectRetireCmd = &cobra.Command{
	Use:   "retire <project>",
	Short: "Archive a project and halt its automation",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRetire,
}

func runProjectRegister(cmd *cobra.Command, args []string) error {
	a := newApp()
	metadata := map[string]string{}
	if projectLocalPath != "" {
		metadata["local_path"] = projectLocalPath
	}
	entry, err := a.reg.Register(registry.NewEntryParams{
		ProjectID: args[0],
		Name:      projectName,
		Domain:    projectDomain,
		Platforms: projectPlatforms,
		RepoURL:   projectRepoURL,
		Metadata:  metadata,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s) at version %s\n", entry.ProjectID, entry.Name, entry.CurrentVersion)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	a := newApp()
	entries, err := a.reg.List(projectListAll)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No projects registered.")
		return nil
	}
	fmt.Printf("%-20s %-24s %-12s %-10s %-9s %s\n", "PROJECT", "NAME", "DOMAIN", "VERSION", "HEALTH", "PLATFORMS")
	for _, e := range entries {
		fmt.Printf("%-20s %-24s %-12s %-10s %-9s %v\n",
			e.ProjectID, e.Name, e.Domain, e.CurrentVersion, e.HealthStatus, e.Platforms)
	}
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	a := newApp()
	entry, err := a.reg.Get(args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runProjectRetire(cmd *cobra.Command, args []string) error {
	a := newApp()
	entry, err := a.reg.Retire(args[0], projectRetireWhy)
	if err != nil {
		return err
	}
	fmt.Printf("Project %s archived.\n", entry.ProjectID)
	return nil
}
