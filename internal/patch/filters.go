package patch

import (
	"context"

	"github.com/ppiankov/autosd/internal/registry"
)

// Filters narrow which non-archived projects a fleet-wide patch run
// touches. Zero-valued filters match everything.
type Filters struct {
	Domain           string
	Platform         string
	SecurityNotGreen bool
	NeedsUpgrade     bool
	TelemetryEnabled bool
	Deployed         bool
}

func (f Filters) matches(e *registry.Entry) bool {
	if f.Domain != "" && e.Domain != f.Domain {
		return false
	}
	if f.Platform != "" {
		found := false
		for _, p := range e.Platforms {
			if p == f.Platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SecurityNotGreen && e.SecurityScanStatus == "green" {
		return false
	}
	if f.NeedsUpgrade && e.Metadata["needs_upgrade"] != "true" {
		return false
	}
	if f.TelemetryEnabled && e.TelemetryPolicy == "off" {
		return false
	}
	if f.Deployed && e.LastDeploy == nil {
		return false
	}
	return true
}

// PatchAll applies the patch workflow to every non-archived project
// matching the filters. Per-project failures never abort the batch.
func (e *Engine) PatchAll(ctx context.Context, filters Filters, opts Options) ([]Outcome, error) {
	entries, err := e.reg.List(false)
	if err != nil {
		return nil, err
	}
	var outcomes []Outcome
	for _, entry := range entries {
		if !filters.matches(entry) {
			continue
		}
		outcomes = append(outcomes, e.PatchProject(ctx, entry.ProjectID, opts))
	}
	return outcomes, nil
}
