// Package preflight provides readiness checks for the facilities an export
// depends on.
//
// These checks run in two contexts:
//   - The export orchestrator asks a Checker before rendering. An unsupported
//     format fails the export with a structured compatibility error listing
//     every missing facility.
//   - The CLI "cutroom check" command uses RunAll to display host readiness.
package preflight
