package services

import "context"

type contextKey string

const (
	exportIDKey contextKey = "export_id"
	phaseKey    contextKey = "phase"
)

// WithExportID annotates context with the export job identifier.
func WithExportID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, exportIDKey, id)
}

// ExportIDFromContext extracts the export job identifier if present.
func ExportIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(exportIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPhase annotates context with the orchestrator phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(phaseKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
