package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cutroom/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Paths.HistoryPath)
			if path == "" {
				return fmt.Errorf("history is disabled (paths.history_path is empty)")
			}
			store, err := history.Open(path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No exports recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "File", "Format", "Size", "Frames", "Status", "Elapsed", "Detail"},
				historyRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of exports to list")
	return cmd
}

func historyRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.OutputPath
		if e.Status != history.StatusCompleted {
			detail = e.ErrorKind
			if e.ErrorMessage != "" {
				detail += ": " + truncate(e.ErrorMessage, 60)
			}
		} else if e.FailedElements > 0 {
			detail = fmt.Sprintf("%s (%d elements failed)", detail, e.FailedElements)
		}
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Filename,
			e.Format,
			fmt.Sprintf("%dx%d", e.Width, e.Height),
			fmt.Sprintf("%d/%d", e.FramesPushed, e.TotalFrames),
			string(e.Status),
			e.Elapsed().Round(time.Second).String(),
			detail,
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
