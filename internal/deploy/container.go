package deploy

import (
	"context"
	"path/filepath"
)

const containerWorkflowScaffold = `name: deploy-container
on:
  push:
    tags: ["v*"]
jobs:
  build-and-push:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: docker/build-push-action@v6
        with:
          context: .
          push: true
          tags: ghcr.io/${{ github.repository }}:${{ github.ref_name }}
`

const containerNotesScaffold = `# Container deployment

Images are built and pushed by the deploy-container workflow on every
version tag. Point your runtime (compose, nomad, k8s) at the pushed
image to complete the rollout.
`

// ContainerTarget scaffolds a registry-push workflow for projects that
// run anywhere a container runs. Rollouts support canary since the
// runtime can pin two image tags side by side.
type ContainerTarget struct{}

func NewContainerTarget() *ContainerTarget { return &ContainerTarget{} }

func (t *ContainerTarget) ID() string           { return "generic_container" }
func (t *ContainerTarget) SupportsCanary() bool { return true }

func (t *ContainerTarget) Deploy(ctx context.Context, req Request) Result {
	workflow := filepath.Join(req.Dir, ".github", "workflows", "deploy-container.yml")
	if _, err := writeFileIfAbsent(workflow, []byte(containerWorkflowScaffold)); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	notes := filepath.Join(req.Dir, artifactDir, "DEPLOY.md")
	if _, err := writeFileIfAbsent(notes, []byte(containerNotesScaffold)); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	if err := writeManifest(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	return okResult(t.ID(), req, "scaffolded container workflow and deploy notes")
}

func (t *ContainerTarget) Rollback(ctx context.Context, req Request) Result {
	if err := writeRollbackMarker(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	return okResult(t.ID(), req, "rollback marker written; repin the previous image tag to roll back")
}
