package preflight

import (
	"context"
	"fmt"

	"cutroom/internal/config"
	"cutroom/internal/deps"
	"cutroom/internal/timeline"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every host check for the given config: directory access,
// external binaries, and the capability check for each output format.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Scratch directory (always checked)
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))

	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}

	for _, status := range deps.CheckBinaries(deps.FFmpegRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary())) {
		results = append(results, binaryResult(status))
	}

	checker := NewSystemChecker(cfg)
	for _, format := range timeline.Formats {
		results = append(results, FormatResult(ctx, checker, format))
	}
	return results
}

func binaryResult(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Path}
	}
	return Result{Name: status.Name, Detail: status.Detail}
}

// FormatResult renders a capability check as a table row.
func FormatResult(ctx context.Context, checker Checker, format timeline.Format) Result {
	name := fmt.Sprintf("Export %s", format)
	compat := checker.CheckCapabilities(ctx, format)
	if compat.Supported {
		return Result{Name: name, Passed: true, Detail: "supported"}
	}
	return Result{Name: name, Detail: compat.Summary()}
}
