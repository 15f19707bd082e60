package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var haltReason string

func init() {
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(resumeCmd)
	haltCmd.Flags().StringVar(&haltReason, "reason", "", "Why automation is being halted")
}

var haltCmd = &cobra.Command{
	Use:   "halt <project>",
	Short: "Halt all automation for a project",
	Long:  "Sets automation_halted so patch and heal skip the project until it is\nresumed. Deploys driven by an operator are unaffected.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHalt,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <project>",
	Short: "Resume automation for a halted project",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func runHalt(cmd *cobra.Command, args []string) error {
	a := newApp()
	entry, err := a.reg.Halt(args[0], haltReason)
	if err != nil {
		return err
	}
	fmt.Printf("Automation halted for %s.\n", entry.ProjectID)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	a := newApp()
	entry, err := a.reg.Resume(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Automation resumed for %s.\n", entry.ProjectID)
	return nil
}
