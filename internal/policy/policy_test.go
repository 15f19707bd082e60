package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/autosd/internal/grant"
)

func TestDefaultBlocksProd(t *testing.T) {
	p := Default()
	if p.Deployment.AllowProd {
		t.Fatal("base policy must not allow prod deploys")
	}
	if !p.Deployment.RequireCanaryForProd {
		t.Fatal("base policy must require canary for prod")
	}
	if p.GitOps.AutoPush || p.GitOps.AutoMerge {
		t.Fatal("base policy must not allow auto push or merge")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p != Default() {
		t.Fatal("expected defaults for missing file")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := "deployment:\n  allow_dev: false\nbudgets:\n  max_deploys_per_day: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Deployment.AllowDev {
		t.Error("overlay should disable dev deploys")
	}
	if p.Budgets.MaxDeploysPerDay != 3 {
		t.Errorf("expected deploy budget 3, got %d", p.Budgets.MaxDeploysPerDay)
	}
	// Untouched sections keep their defaults.
	if !p.Deployment.RequireCanaryForProd {
		t.Error("overlay should not clear canary requirement")
	}
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("{not yaml"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func grantWith(caps map[string]bool) *grant.Grant {
	return &grant.Grant{GrantID: "g-test", Capabilities: caps}
}

func TestResolveNilGrantKeepsBase(t *testing.T) {
	base := Default()
	if Resolve(base, nil) != base {
		t.Fatal("nil grant must return base unchanged")
	}
}

func TestResolveProdComesSolelyFromGrant(t *testing.T) {
	base := Default()
	base.Deployment.AllowProd = true // even a permissive base cannot grant prod alone

	p := Resolve(base, grantWith(map[string]bool{"auto_deploy_prod": false}))
	if p.Deployment.AllowProd {
		t.Fatal("prod must come solely from the grant")
	}
	p = Resolve(Default(), grantWith(map[string]bool{"auto_deploy_prod": true}))
	if !p.Deployment.AllowProd {
		t.Fatal("grant with auto_deploy_prod must allow prod")
	}
}

func TestResolveDevStagingAndedWithBase(t *testing.T) {
	base := Default()
	base.Deployment.AllowStaging = false

	p := Resolve(base, grantWith(map[string]bool{"auto_deploy_staging": true, "auto_deploy_dev": true}))
	if p.Deployment.AllowStaging {
		t.Fatal("grant cannot re-enable staging the base blocked")
	}
	if !p.Deployment.AllowDev {
		t.Fatal("dev allowed by both base and grant")
	}
}

func TestResolveGrantElevatesGitOps(t *testing.T) {
	p := Resolve(Default(), grantWith(map[string]bool{"auto_push": true}))
	if !p.GitOps.AutoPush {
		t.Fatal("auto_push capability must elevate the base policy")
	}
	if p.GitOps.AutoMerge {
		t.Fatal("auto_merge not granted")
	}
}

func TestEvaluateDeployEnvironments(t *testing.T) {
	tests := []struct {
		env     string
		allowed bool
		reason  string
	}{
		{"dev", true, "ok"},
		{"staging", true, "ok"},
		{"prod", false, "prod_deploy_blocked"},
		{"", true, "ok"}, // defaults to dev
	}
	p := Default()
	for _, tt := range tests {
		d := Evaluate(p, ActionDeploy, tt.env)
		if d.Allowed != tt.allowed || d.Reason != tt.reason {
			t.Errorf("env %q: got (%t, %s), want (%t, %s)", tt.env, d.Allowed, d.Reason, tt.allowed, tt.reason)
		}
	}
}

func TestEvaluateProdAllowedWithGrant(t *testing.T) {
	p := Resolve(Default(), grantWith(map[string]bool{"auto_deploy_prod": true}))
	d := Evaluate(p, ActionDeploy, "prod")
	if !d.Allowed {
		t.Fatalf("expected prod allowed with grant, got %s", d.Reason)
	}
}

func TestEvaluateNonDeployActions(t *testing.T) {
	p := Default()
	if d := Evaluate(p, ActionAutoPush, ""); d.Allowed || d.Reason != "auto_push_blocked" {
		t.Errorf("auto_push: got (%t, %s)", d.Allowed, d.Reason)
	}
	if d := Evaluate(p, ActionAutoMerge, ""); d.Allowed || d.Reason != "auto_merge_blocked" {
		t.Errorf("auto_merge: got (%t, %s)", d.Allowed, d.Reason)
	}
	if d := Evaluate(p, ActionPublishAppStore, ""); d.Allowed || d.Reason != "app_store_blocked" {
		t.Errorf("publish: got (%t, %s)", d.Allowed, d.Reason)
	}
	if d := Evaluate(p, "launch_missiles", ""); d.Allowed || d.Reason != "unknown_action" {
		t.Errorf("unknown: got (%t, %s)", d.Allowed, d.Reason)
	}
}

func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	p := Default()
	p.GrantID = "g-obs"
	if err := WriteSnapshot(dir, p); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".autosd", "policy_resolved.json"))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if got.GrantID != "g-obs" {
		t.Errorf("expected grant id in snapshot, got %q", got.GrantID)
	}
}
