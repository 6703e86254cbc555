// Package backup implements the pgbak orchestration engine: the per-run
// scheduling decision, the streaming dump→compress pipeline, post-upload
// size-drift verification, healthcheck notification, and the per-target
// failure/recovery state machine, all under a single-instance execution
// guarantee.
//
// Core components:
//
//   - InstanceLock: host-wide mutual exclusion that survives crashes
//   - IsDue: the pure scheduling decision
//   - DumpCompressPipeline: pg_dump streamed into compression/encryption
//   - Verifier: average-relative size-drift check against the last success
//   - HealthcheckNotifier: dead-man's-switch pings with bounded linear retry
//   - Orchestrator: the sequential control loop tying everything together
//   - StorageProvider implementations: S3/B2, GCS, Azure Blob, local
//
// The target registry is an external collaborator reached through the narrow
// Registry interface; the orchestrator only reads target definitions and
// appends audit rows.
//
// Example usage:
//
//	store, err := registry.Open(path, logger)
//	if err != nil {
//		return err
//	}
//	orch := backup.NewOrchestrator(cfg, store, logger)
//	report, err := orch.Run(ctx, backup.RunOptions{Force: false})
//	if backup.IsLockBusy(err) {
//		return err // another instance is running, nothing was processed
//	}
package backup
