// Package common provides shared constants, types, utilities, and interfaces
// used throughout lynxsync.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: directory defaults, WireGuard profile defaults, file suffixes
//   - Errors: sentinel errors and the per-profile failure taxonomy
//   - Interfaces: the Logger abstraction consumed by the reconciliation engine
//   - Logger: levelled logging with optional rotated file output
//   - Utils: config/data directories, atomic file writes, name sanitising
//
// # Usage
//
//	common.LogInfo("Reconciling %s", profileID)
//
//	if errors.Is(err, common.ErrProfileNotFound) {
//	    // first run for this profile
//	}
//
//	kind := common.FailureKind(err) // "DirectoryUnavailable", ...
package common
