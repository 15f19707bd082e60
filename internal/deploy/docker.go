package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/autosd/internal/executor"
)

const dockerfileScaffold = `FROM alpine:3.20
WORKDIR /app
COPY . /app
CMD ["/app/run.sh"]
`

// DockerTarget deploys by building a local container image. Without
// execute it only scaffolds a Dockerfile and a deploy manifest.
type DockerTarget struct {
	exec *executor.Executor
}

func NewDockerTarget(exec *executor.Executor) *DockerTarget {
	return &DockerTarget{exec: exec}
}

func (t *DockerTarget) ID() string           { return "docker" }
func (t *DockerTarget) SupportsCanary() bool { return true }

func (t *DockerTarget) Deploy(ctx context.Context, req Request) Result {
	dockerfile := filepath.Join(req.Dir, "Dockerfile")
	if _, err := os.Stat(dockerfile); err != nil {
		if err := os.WriteFile(dockerfile, []byte(dockerfileScaffold), 0o644); err != nil {
			return failResult(t.ID(), req, fmt.Sprintf("write Dockerfile: %v", err))
		}
	}
	if err := writeManifest(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	if !req.Execute {
		return okResult(t.ID(), req, "scaffolded Dockerfile and deploy manifest")
	}

	image := fmt.Sprintf("autosd/%s:%s", imageName(req), req.Version)
	res := t.exec.Run(ctx, fmt.Sprintf("docker build -t %s .", image), req.Dir)
	if res.ExitCode != 0 {
		return failResult(t.ID(), req, fmt.Sprintf("docker build failed: %s", firstLine(res.Stderr)))
	}
	return okResult(t.ID(), req, fmt.Sprintf("built image %s", image))
}

func (t *DockerTarget) Rollback(ctx context.Context, req Request) Result {
	if err := writeRollbackMarker(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	return okResult(t.ID(), req, "rollback marker written")
}

func imageName(req Request) string {
	name := req.ProjectName
	if name == "" {
		name = filepath.Base(req.Dir)
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
