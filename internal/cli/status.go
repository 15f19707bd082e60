package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	statusWatch    bool
	statusArchived bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Re-render when the registry file changes")
	statusCmd.Flags().BoolVar(&statusArchived, "all", false, "Include archived projects")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fleet status table",
	Long:  "Prints one row per project: version, health, CI, and security state.\nWith --watch, re-renders whenever the registry ledger changes.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a := newApp()
	if err := printStatus(a); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: appends recreate or rewrite the file on some
	// platforms and a directory watch survives that.
	dir := filepath.Dir(a.cfg.RegistryPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("\nWatching for registry changes (Ctrl-C to stop)...")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != a.cfg.RegistryPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fmt.Println()
			if err := printStatus(a); err != nil {
				fmt.Fprintf(os.Stderr, "status: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-sigCh:
			return nil
		}
	}
}

func printStatus(a *app) error {
	rows, err := a.reg.StatusRows(statusArchived)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No projects registered.")
		return nil
	}
	fmt.Printf("%-20s %-24s %-10s %-9s %-7s %-9s %s\n", "PROJECT", "NAME", "VERSION", "HEALTH", "CI", "SECURITY", "FLAGS")
	for _, row := range rows {
		flags := ""
		if row.Halted {
			flags += "halted "
		}
		if row.Archived {
			flags += "archived"
		}
		fmt.Printf("%-20s %-24s %-10s %-9s %-7s %-9s %s\n",
			row.ProjectID, row.Name, row.Version, row.Health, row.CI, row.Security, flags)
	}
	return nil
}
