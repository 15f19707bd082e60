package deploy

import (
	"context"
	"path/filepath"
)

const pagesWorkflowScaffold = `name: deploy-pages
on:
  push:
    branches: [main]
permissions:
  contents: read
  pages: write
  id-token: write
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: actions/upload-pages-artifact@v3
        with:
          path: .
      - uses: actions/deploy-pages@v4
`

const pagesIndexScaffold = `<!doctype html>
<html>
  <head><title>Deployed with AutoSD</title></head>
  <body><h1>It works.</h1></body>
</html>
`

// PagesTarget deploys static sites via a GitHub Pages workflow. The
// actual rollout happens in CI after push; locally this target only
// scaffolds, so canary strategies are not supported.
type PagesTarget struct{}

func NewPagesTarget() *PagesTarget { return &PagesTarget{} }

func (t *PagesTarget) ID() string           { return "github_pages" }
func (t *PagesTarget) SupportsCanary() bool { return false }

func (t *PagesTarget) Deploy(ctx context.Context, req Request) Result {
	workflow := filepath.Join(req.Dir, ".github", "workflows", "pages.yml")
	if _, err := writeFileIfAbsent(workflow, []byte(pagesWorkflowScaffold)); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	index := filepath.Join(req.Dir, "index.html")
	if _, err := writeFileIfAbsent(index, []byte(pagesIndexScaffold)); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	if err := writeManifest(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	return okResult(t.ID(), req, "scaffolded pages workflow; rollout happens on push")
}

func (t *PagesTarget) Rollback(ctx context.Context, req Request) Result {
	if err := writeRollbackMarker(req, t.ID()); err != nil {
		return failResult(t.ID(), req, err.Error())
	}
	return okResult(t.ID(), req, "rollback marker written; revert the published branch to roll back")
}
