// Package quality builds and runs per-project quality gate plans. The
// plan is inferred from the project's build manifest; unknown stacks
// get an empty plan rather than an error so ungated projects still
// flow through the release pipeline.
package quality

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ppiankov/autosd/internal/executor"
)

// Gate is one named quality check.
type Gate struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// GateResult pairs a gate with its execution outcome.
type GateResult struct {
	Gate   Gate            `json:"gate"`
	Result executor.Result `json:"result"`
}

// Plan returns the quality gates for a project directory based on
// which build manifest is present. Go projects are checked first since
// mixed trees are usually Go services with vendored frontends.
func Plan(dir string) []Gate {
	switch {
	case exists(filepath.Join(dir, "go.mod")):
		return []Gate{
			{Name: "vet", Command: "go vet ./..."},
			{Name: "test", Command: "go test ./..."},
		}
	case exists(filepath.Join(dir, "package.json")):
		return []Gate{
			{Name: "test", Command: "npm test --silent"},
		}
	case exists(filepath.Join(dir, "pyproject.toml")):
		return []Gate{
			{Name: "test", Command: "python -m pytest -q"},
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Run executes the plan for a directory, stopping at the first failing
// gate. It returns all results gathered and whether every gate passed.
func Run(ctx context.Context, exec *executor.Executor, dir string) ([]GateResult, bool) {
	var results []GateResult
	for _, gate := range Plan(dir) {
		res := exec.Run(ctx, gate.Command, dir)
		results = append(results, GateResult{Gate: gate, Result: res})
		if res.ExitCode != 0 {
			return results, false
		}
	}
	return results, true
}
