// Package main provides the entry point for the prefstore settings
// service. It keeps typed configuration values consistent between an
// in-memory working copy and a slow, quota-limited key-value store:
// a schema loader defines what settings exist, a write-serializing
// operation queue turns concurrent storage requests into a safe ordered
// sequence, and a settings store validates mutations, batches writes
// behind a debounce, and reports a save-status state machine to
// observers. A small Fiber admin API exposes the store locally.
package main
