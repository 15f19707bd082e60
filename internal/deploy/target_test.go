package deploy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/autosd/internal/executor"
)

func scaffoldRequest(t *testing.T, env string) Request {
	t.Helper()
	return Request{
		ProjectID:   "svc-billing",
		ProjectName: "Billing Service",
		Dir:         t.TempDir(),
		Version:     "1.2.3",
		Environment: env,
		Strategy:    "standard",
	}
}

func TestDockerTargetScaffolds(t *testing.T) {
	target := NewDockerTarget(executor.New(0))
	req := scaffoldRequest(t, "dev")

	result := target.Deploy(context.Background(), req)
	if !result.Success {
		t.Fatalf("deploy: %s", result.Message)
	}
	if !result.ScaffoldOnly {
		t.Fatal("non-execute deploy must be scaffold only")
	}
	if _, err := os.Stat(filepath.Join(req.Dir, "Dockerfile")); err != nil {
		t.Fatal("Dockerfile not scaffolded")
	}

	data, err := os.ReadFile(filepath.Join(req.Dir, ".autosd", "deploy_dev.json"))
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest["target"] != "docker" || manifest["version"] != "1.2.3" || manifest["strategy"] != "standard" {
		t.Errorf("manifest = %v", manifest)
	}
}

func TestDockerTargetPreservesExistingDockerfile(t *testing.T) {
	target := NewDockerTarget(executor.New(0))
	req := scaffoldRequest(t, "dev")
	custom := []byte("FROM scratch\n")
	if err := os.WriteFile(filepath.Join(req.Dir, "Dockerfile"), custom, 0644); err != nil {
		t.Fatal(err)
	}

	if result := target.Deploy(context.Background(), req); !result.Success {
		t.Fatalf("deploy: %s", result.Message)
	}
	data, _ := os.ReadFile(filepath.Join(req.Dir, "Dockerfile"))
	if string(data) != string(custom) {
		t.Fatal("operator Dockerfile overwritten")
	}
}

func TestDockerTargetRollbackMarker(t *testing.T) {
	target := NewDockerTarget(executor.New(0))
	req := scaffoldRequest(t, "prod")

	result := target.Rollback(context.Background(), req)
	if !result.Success {
		t.Fatalf("rollback: %s", result.Message)
	}
	if _, err := os.Stat(filepath.Join(req.Dir, ".autosd", "rollback_prod.json")); err != nil {
		t.Fatal("rollback marker missing")
	}
}

func TestPagesTargetScaffolds(t *testing.T) {
	target := NewPagesTarget()
	if target.SupportsCanary() {
		t.Fatal("pages target cannot do canary rollouts")
	}
	req := scaffoldRequest(t, "staging")

	result := target.Deploy(context.Background(), req)
	if !result.Success {
		t.Fatalf("deploy: %s", result.Message)
	}
	for _, path := range []string{
		filepath.Join(req.Dir, ".github", "workflows", "pages.yml"),
		filepath.Join(req.Dir, "index.html"),
		filepath.Join(req.Dir, ".autosd", "deploy_staging.json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing scaffold %s", path)
		}
	}
}

func TestPagesTargetPreservesExistingIndex(t *testing.T) {
	target := NewPagesTarget()
	req := scaffoldRequest(t, "dev")
	custom := []byte("<html>mine</html>\n")
	if err := os.WriteFile(filepath.Join(req.Dir, "index.html"), custom, 0644); err != nil {
		t.Fatal(err)
	}

	if result := target.Deploy(context.Background(), req); !result.Success {
		t.Fatalf("deploy: %s", result.Message)
	}
	data, _ := os.ReadFile(filepath.Join(req.Dir, "index.html"))
	if string(data) != string(custom) {
		t.Fatal("operator index.html overwritten")
	}
}

func TestContainerTargetScaffolds(t *testing.T) {
	target := NewContainerTarget()
	if !target.SupportsCanary() {
		t.Fatal("container target supports canary")
	}
	req := scaffoldRequest(t, "dev")

	result := target.Deploy(context.Background(), req)
	if !result.Success {
		t.Fatalf("deploy: %s", result.Message)
	}
	for _, path := range []string{
		filepath.Join(req.Dir, ".github", "workflows", "deploy-container.yml"),
		filepath.Join(req.Dir, ".autosd", "DEPLOY.md"),
		filepath.Join(req.Dir, ".autosd", "deploy_dev.json"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing scaffold %s", path)
		}
	}
}

func TestImageName(t *testing.T) {
	req := Request{ProjectName: "Billing Service"}
	if got := imageName(req); got != "billing-service" {
		t.Errorf("imageName = %q", got)
	}
	req = Request{ProjectName: "", Dir: "/tmp/Work/MyApp"}
	if got := imageName(req); got != "myapp" {
		t.Errorf("imageName fallback = %q", got)
	}
}
