// Package memory tracks the export memory budget. Frame buffers and the
// mixed audio are reserved against a Tracker whose Level drives eviction at
// the warning threshold and aborts the export at the critical one.
package memory
