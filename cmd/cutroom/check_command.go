package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cutroom/internal/deps"
	"cutroom/internal/preflight"
	"cutroom/internal/timeline"
)

var errChecksFailed = errors.New("one or more checks failed")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that this host can export",
		Long: "Check directory access, external binaries, and encoder support.\n" +
			"With --format only the binaries and encoders that format needs are checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var results []preflight.Result
			if f := strings.TrimSpace(format); f != "" {
				target := timeline.Format(strings.ToLower(f))
				if !target.Valid() {
					return fmt.Errorf("unknown format %q", f)
				}
				results = append(results, preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
				if len(deps.RequiredEncoders(target)) > 0 {
					for _, status := range deps.CheckBinaries(deps.FFmpegRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary())) {
						results = append(results, statusResult(status))
					}
				}
				results = append(results, preflight.FormatResult(cmd.Context(), preflight.NewSystemChecker(cfg), target))
			} else {
				results = preflight.RunAll(cmd.Context(), cfg)
			}

			failed := false
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				if !r.Passed {
					failed = true
				}
				rows = append(rows, []string{r.Name, passFail(r.Passed), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if failed {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Only check what one format needs")
	return cmd
}

func statusResult(status deps.Status) preflight.Result {
	switch {
	case status.Available:
		return preflight.Result{Name: status.Name, Passed: true, Detail: status.Path}
	case status.Optional:
		return preflight.Result{Name: status.Name, Passed: true, Detail: "optional: " + status.Detail}
	default:
		return preflight.Result{Name: status.Name, Detail: status.Detail}
	}
}
