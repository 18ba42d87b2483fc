// Package preflight checks that recidx can run in the current environment
// before the first refresh.
//
// The package validates:
//   - the loaded configuration
//   - free disk space next to the snapshot (minimum 100MB)
//   - available memory against a full store (warning only)
//   - write permissions for the snapshot and telemetry directories
//   - file descriptor limits (minimum 1024)
//   - configured sources, optionally fetching each one
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
