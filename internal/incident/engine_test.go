package incident

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/autosd/internal/deploy"
	"github.com/ppiankov/autosd/internal/patch"
	"github.com/ppiankov/autosd/internal/registry"
)

type fakePatcher struct {
	succeed bool
	lastRef string
	reason  string
}

func (f *fakePatcher) PatchProject(ctx context.Context, ref string, opts patch.Options) patch.Outcome {
	f.lastRef = ref
	f.reason = opts.Reason
	out := patch.Outcome{ProjectID: ref, Branch: "autosd/patch-test", Success: f.succeed}
	if !f.succeed {
		out.Error = "quality gate failed"
	}
	return out
}

type fakeDeployer struct {
	deployOK      bool
	deployCalls   int
	rollbackCalls int
	lastStrategy  string
	lastEnv       string
	lastExecute   bool
	lastRollback  bool
}

func (f *fakeDeployer) Deploy(ctx context.Context, projectRef, environment, targetID, strategy string, execute bool) (deploy.Result, error) {
	f.deployCalls++
	f.lastStrategy = strategy
	f.lastEnv = environment
	f.lastExecute = execute
	return deploy.Result{ProjectID: projectRef, Environment: environment, Target: targetID, Success: f.deployOK}, nil
}

func (f *fakeDeployer) Rollback(ctx context.Context, projectRef, environment, targetID string, execute bool) (deploy.Result, error) {
	f.rollbackCalls++
	f.lastRollback = execute
	return deploy.Result{ProjectID: projectRef, Environment: environment, Target: targetID, Success: true, ScaffoldOnly: !execute}, nil
}

type fixture struct {
	engine   *Engine
	store    *Store
	reg      *registry.Registry
	patcher  *fakePatcher
	deployer *fakeDeployer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "incidents.jsonl"))
	reg := registry.New(filepath.Join(dir, "registry.jsonl"))
	if _, err := reg.Register(registry.NewEntryParams{
		ProjectID: "svc-billing",
		Name:      "billing",
		Domain:    "payments",
		Platforms: []string{"docker"},
		Metadata:  map[string]string{"local_path": t.TempDir()},
	}); err != nil {
		t.Fatal(err)
	}
	patcher := &fakePatcher{succeed: true}
	deployer := &fakeDeployer{deployOK: true}
	return &fixture{
		engine:   NewEngine(store, reg, patcher, deployer),
		store:    store,
		reg:      reg,
		patcher:  patcher,
		deployer: deployer,
	}
}

func TestDetectBelowThresholds(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.DetectFromSignals("svc-billing", 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatal("signals below thresholds must not open an incident")
	}
	records, _ := f.store.List()
	if len(records) != 0 {
		t.Fatal("nothing should be appended")
	}
}

func TestDetectErrorsOpensMediumIncident(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.DetectFromSignals("svc-billing", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("error threshold crossed, expected an incident")
	}
	if rec.Severity != "medium" || rec.Status != "open" || rec.Source != "telemetry" {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(rec.SignalSummary, "5 errors") {
		t.Errorf("summary = %q", rec.SignalSummary)
	}
}

func TestDetectCrashOpensHighIncident(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.DetectFromSignals("svc-billing", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Severity != "high" {
		t.Fatalf("crash must open a high severity incident, got %+v", rec)
	}
}

func TestHealUnknownProject(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HealProject(context.Background(), "svc-nope", HealOptions{}); !errors.Is(err, registry.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestHealUnknownIncident(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{IncidentID: "inc-ghost"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("got %v", err)
	}
}

func TestHealPatchOnlyResolves(t *testing.T) {
	f := newFixture(t)
	result, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{})
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if result.Status != "resolved" {
		t.Fatalf("status = %q", result.Status)
	}
	if result.Deploy != nil || result.Rollback != nil {
		t.Fatal("no deploy target given, nothing should deploy")
	}
	if result.Incident.Source != "manual" {
		t.Errorf("synthesized incident source = %q", result.Incident.Source)
	}
	if !strings.Contains(f.patcher.reason, "incident "+result.Incident.IncidentID) {
		t.Errorf("patch reason = %q", f.patcher.reason)
	}
	// Final state re-appended to the ledger.
	latest, _ := f.store.Get(result.Incident.IncidentID)
	if latest == nil || latest.Status != "resolved" || !latest.PatchSuccess {
		t.Fatalf("ledger state = %+v", latest)
	}
}

func TestHealWithCanaryDeploy(t *testing.T) {
	f := newFixture(t)
	result, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{DeployTarget: "docker"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "resolved" {
		t.Fatalf("status = %q", result.Status)
	}
	if f.deployer.deployCalls != 1 || f.deployer.lastStrategy != "canary" {
		t.Errorf("deploy calls=%d strategy=%q", f.deployer.deployCalls, f.deployer.lastStrategy)
	}
	if f.deployer.lastEnv != "staging" {
		t.Errorf("default environment = %q", f.deployer.lastEnv)
	}
	if f.deployer.rollbackCalls != 0 {
		t.Error("successful deploy must not roll back")
	}
}

func TestHealDeployFailureRollsBackOnce(t *testing.T) {
	f := newFixture(t)
	f.deployer.deployOK = false

	result, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{DeployTarget: "docker", ExecuteDeploy: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "failed" {
		t.Fatalf("status = %q", result.Status)
	}
	if f.deployer.rollbackCalls != 1 {
		t.Fatalf("expected exactly one rollback, got %d", f.deployer.rollbackCalls)
	}
	if f.deployer.lastRollback {
		t.Fatal("safety rollback must be scaffold only")
	}
	if result.Rollback == nil || !result.Rollback.Success {
		t.Fatalf("rollback result = %+v", result.Rollback)
	}
	latest, _ := f.store.Get(result.Incident.IncidentID)
	if latest.Status != "failed" || latest.DeploySuccess {
		t.Fatalf("ledger state = %+v", latest)
	}
}

func TestHealPatchFailureSkipsDeploy(t *testing.T) {
	f := newFixture(t)
	f.patcher.succeed = false

	result, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{DeployTarget: "docker"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "failed" {
		t.Fatalf("status = %q", result.Status)
	}
	if f.deployer.deployCalls != 0 {
		t.Fatal("failed patch must not deploy")
	}
}

func TestHealWritesPostmortem(t *testing.T) {
	f := newFixture(t)
	result, err := f.engine.HealProject(context.Background(), "svc-billing", HealOptions{})
	if err != nil {
		t.Fatal(err)
	}
	latest, _ := f.store.Get(result.Incident.IncidentID)
	if latest.PostmortemPath == "" {
		t.Fatal("postmortem path not recorded")
	}
	data, err := os.ReadFile(latest.PostmortemPath)
	if err != nil {
		t.Fatalf("read postmortem: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "svc-billing") || !strings.Contains(content, "resolved") {
		t.Errorf("postmortem = %q", content)
	}
}
