// Package history keeps a SQLite ledger of finished exports. The CLI
// records one entry per export from the orchestrator's terminal report and
// lists them with "cutroom history".
package history
