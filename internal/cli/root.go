// Package cli wires the fleet operations commands. Every privileged
// operation follows the same path: verify the grant, resolve policy,
// evaluate the action, run the orchestrator, print a table, write one
// audit line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autosd/internal/config"
	"github.com/ppiankov/autosd/internal/deploy"
	"github.com/ppiankov/autosd/internal/executor"
	"github.com/ppiankov/autosd/internal/grant"
	"github.com/ppiankov/autosd/internal/incident"
	"github.com/ppiankov/autosd/internal/keys"
	"github.com/ppiankov/autosd/internal/patch"
	"github.com/ppiankov/autosd/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:   "autosd",
	Short: "Fleet operations control plane",
	Long:  "Signed capability grants, policy-gated deploys, automated patching and\nincident healing across a portfolio of projects, with a tamper-evident\naudit trail.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components one invocation needs. Constructed
// fresh per command from the environment.
type app struct {
	cfg       config.Config
	keys      *keys.Store
	authority *grant.Authority
	verifier  *grant.Verifier
	reg       *registry.Registry
}

func newApp() *app {
	cfg := config.FromEnv()
	keyStore := keys.NewStore(cfg.PreauthHome)
	authority := grant.NewAuthority(cfg.PreauthHome)
	return &app{
		cfg:       cfg,
		keys:      keyStore,
		authority: authority,
		verifier:  grant.NewVerifier(keyStore, authority),
		reg:       registry.New(cfg.RegistryPath, cfg.RegistryOverlays...),
	}
}

func (a *app) orchestrator() *deploy.Orchestrator {
	exec := executor.New(0)
	return deploy.NewOrchestrator(a.reg,
		deploy.NewDockerTarget(exec),
		deploy.NewPagesTarget(),
		deploy.NewContainerTarget(),
	)
}

func (a *app) patchEngine() *patch.Engine {
	return patch.NewEngine(a.reg, executor.New(0))
}

func (a *app) incidentEngine() *incident.Engine {
	store := incident.NewStore(a.cfg.IncidentsPath)
	return incident.NewEngine(store, a.reg, a.patchEngine(), a.orchestrator())
}

func (a *app) incidentStore() *incident.Store {
	return incident.NewStore(a.cfg.IncidentsPath)
}
