package patch

import (
	"context"
	"testing"

	"github.com/ppiankov/autosd/internal/registry"
)

func filterEntry() *registry.Entry {
	return &registry.Entry{
		ProjectID:          "svc-billing",
		Domain:             "payments",
		Platforms:          []string{"docker", "generic_container"},
		SecurityScanStatus: "green",
		TelemetryPolicy:    "off",
		Metadata:           map[string]string{},
	}
}

func TestFiltersMatch(t *testing.T) {
	e := filterEntry()

	if !(Filters{}).matches(e) {
		t.Fatal("zero filters must match everything")
	}
	if !(Filters{Domain: "payments"}).matches(e) {
		t.Fatal("domain match")
	}
	if (Filters{Domain: "web"}).matches(e) {
		t.Fatal("domain mismatch")
	}
	if !(Filters{Platform: "docker"}).matches(e) {
		t.Fatal("platform match")
	}
	if (Filters{Platform: "ios"}).matches(e) {
		t.Fatal("platform mismatch")
	}
	if (Filters{SecurityNotGreen: true}).matches(e) {
		t.Fatal("green security must be excluded")
	}
	e.SecurityScanStatus = "red"
	if !(Filters{SecurityNotGreen: true}).matches(e) {
		t.Fatal("red security must be included")
	}
	if (Filters{NeedsUpgrade: true}).matches(e) {
		t.Fatal("needs_upgrade unset")
	}
	e.Metadata["needs_upgrade"] = "true"
	if !(Filters{NeedsUpgrade: true}).matches(e) {
		t.Fatal("needs_upgrade set")
	}
	if (Filters{TelemetryEnabled: true}).matches(e) {
		t.Fatal("telemetry off must be excluded")
	}
	e.TelemetryPolicy = "aggregate"
	if !(Filters{TelemetryEnabled: true}).matches(e) {
		t.Fatal("telemetry on must be included")
	}
	if (Filters{Deployed: true}).matches(e) {
		t.Fatal("never-deployed must be excluded")
	}
	e.LastDeploy = &registry.DeployRecord{Environment: "dev", Target: "docker", Version: "0.1.0", Timestamp: "2026-01-01T00:00:00Z"}
	if !(Filters{Deployed: true}).matches(e) {
		t.Fatal("deployed must be included")
	}
}

func TestPatchAllNeverAborts(t *testing.T) {
	eng, reg := testEngine(t)
	register(t, reg, "svc-a", nil)
	register(t, reg, "svc-b", nil)
	archived := register(t, reg, "svc-old", nil)
	if _, err := reg.Retire(archived.ProjectID, ""); err != nil {
		t.Fatal(err)
	}

	outcomes, err := eng.PatchAll(context.Background(), Filters{}, Options{Reason: "fix"})
	if err != nil {
		t.Fatalf("patch-all: %v", err)
	}
	// Archived project is excluded by the reduced list, not reported.
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, out := range outcomes {
		if out.Success {
			t.Errorf("%s: projects without a working directory cannot succeed", out.ProjectID)
		}
	}
}

func TestPatchAllWithDomainFilter(t *testing.T) {
	eng, reg := testEngine(t)
	register(t, reg, "svc-a", nil)
	if _, err := reg.Update("svc-a", func(e *registry.Entry) { e.Domain = "payments" }); err != nil {
		t.Fatal(err)
	}
	register(t, reg, "web-b", nil)

	outcomes, err := eng.PatchAll(context.Background(), Filters{Domain: "payments"}, Options{Reason: "fix"})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].ProjectID != "svc-a" {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}
