package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pgbak/internal/logging"
)

// Config is the explicit orchestrator configuration. Process-wide defaults
// live here instead of in mutable globals; the orchestrator receives one
// Config at construction and never consults the environment afterwards.
type Config struct {
	// LockPath is the single-instance lock file; empty means
	// <tempdir>/pgbak.lock.
	LockPath string

	// WorkDirParent is where the run-scoped working directory is created;
	// empty means the system temp directory.
	WorkDirParent string

	// DriftThresholdPercent is the verifier's alarm level; zero means the
	// default of 10%.
	DriftThresholdPercent float64

	// Pipeline configures artifact production.
	Pipeline PipelineConfig

	// DefaultPassphrase applies to targets without their own passphrase.
	DefaultPassphrase string

	// DefaultStorage supplies upload settings for fields a target omits.
	DefaultStorage StorageSettings
}

func (c Config) lockPath() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return filepath.Join(os.TempDir(), "pgbak.lock")
}

// RunOptions control a single orchestration invocation.
type RunOptions struct {
	// Force runs every candidate regardless of schedule.
	Force bool
	// TargetID restricts the run to one target when non-zero.
	TargetID int64
}

// TargetReport records one target's outcome within a run.
type TargetReport struct {
	TargetID      int64
	TargetName    string
	State         RunState
	ArtifactBytes int64
	Remote        string
	Err           error
}

// RunReport summarizes a whole orchestration run.
type RunReport struct {
	RunID   string
	Started time.Time
	Targets []TargetReport
}

// Failed reports how many targets ended in StateFailed.
func (r *RunReport) Failed() int {
	n := 0
	for _, t := range r.Targets {
		if t.State == StateFailed {
			n++
		}
	}
	return n
}

// StorageResolver produces the uploader for a target, merging per-target
// credentials with the process-wide defaults.
type StorageResolver func(ctx context.Context, target Target) (StorageProvider, error)

// Orchestrator is the control loop: it acquires the host lock, iterates due
// targets, runs the pipeline, uploads, verifies, notifies, and writes the
// audit trail. Targets are processed sequentially; one target's failure
// never aborts the batch.
type Orchestrator struct {
	cfg      Config
	registry Registry
	pipeline Pipeline
	verifier *Verifier
	notifier Notifier
	resolver StorageResolver
	logger   *logging.Logger
	now      func() time.Time
}

// NewOrchestrator wires the default collaborators from cfg.
func NewOrchestrator(cfg Config, registry Registry, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		pipeline: NewDumpCompressPipeline(cfg.Pipeline, logger),
		verifier: NewVerifier(cfg.DriftThresholdPercent),
		notifier: NewHealthcheckNotifier(logger),
		resolver: func(ctx context.Context, t Target) (StorageProvider, error) {
			return NewStorageProvider(ctx, t.Storage.Merged(cfg.DefaultStorage))
		},
		logger: logger,
		now:    time.Now,
	}
}

// SetPipeline replaces the artifact pipeline.
func (o *Orchestrator) SetPipeline(p Pipeline) { o.pipeline = p }

// SetNotifier replaces the healthcheck notifier.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// SetStorageResolver replaces the uploader factory.
func (o *Orchestrator) SetStorageResolver(r StorageResolver) { o.resolver = r }

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Run executes one orchestration pass. Only lock contention and environment
// failures (working directory, candidate listing) return an error; per-target
// failures are isolated, audited, and reflected in the report.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	lock, err := AcquireInstanceLock(o.cfg.lockPath())
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	report := &RunReport{
		RunID:   uuid.NewString(),
		Started: o.now().UTC(),
	}
	o.logger.LogRunStart(report.RunID, opts.Force, opts.TargetID)

	workDir, err := os.MkdirTemp(o.cfg.WorkDirParent, "pgbak-run-*")
	if err != nil {
		return nil, NewConfigurationError("failed to create working directory", err)
	}
	// The working directory is scoped to the run and removed unconditionally,
	// including on failure.
	defer os.RemoveAll(workDir)

	targets, err := o.registry.ListCandidates(ctx, TargetFilter{TargetID: opts.TargetID})
	if err != nil {
		return nil, NewRegistryError("failed to list backup targets", err)
	}

	for _, target := range targets {
		report.Targets = append(report.Targets, o.runTarget(ctx, workDir, target, opts.Force))
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":  report.RunID,
		"targets": len(report.Targets),
		"failed":  report.Failed(),
	}).Info("Backup run finished")
	return report, nil
}

// runTarget drives one target through the per-target state machine:
//
//	Pending → Skipped
//	Pending → Running → Failed
//	Pending → Running → Verifying → Failed   (anomaly, artifact already offsite)
//	Pending → Running → Verifying → Succeeded
func (o *Orchestrator) runTarget(ctx context.Context, workDir string, target Target, force bool) TargetReport {
	report := TargetReport{TargetID: target.ID, TargetName: target.Name, State: StatePending}
	now := o.now().UTC()

	if !IsDue(target, now, force) {
		// Not due: no audit record, no notification.
		report.State = StateSkipped
		o.logger.WithField("target", target.Name).Debug("Target not due, skipping")
		return report
	}

	report.State = StateRunning
	o.notifier.Notify(ctx, target.StartURL, "")

	passphrase := target.Passphrase(o.cfg.DefaultPassphrase)
	artifactName := target.ArchiveName
	if artifactName == "" {
		artifactName = target.Name
	}
	fileName := artifactName + o.cfg.Pipeline.ArtifactExtension(passphrase != "")
	outputPath := filepath.Join(workDir, fileName)
	// Bound disk usage to roughly one artifact across the whole batch.
	defer os.Remove(outputPath)

	pipelineStart := o.now()
	size, err := o.pipeline.Run(ctx, PipelineRequest{
		ConnectionString: target.ConnectionString,
		OutputPath:       outputPath,
		Passphrase:       passphrase,
		ExcludeTables:    target.ExcludeTables,
	})
	o.logger.LogPipeline(target.Name, fileName, size, o.now().Sub(pipelineStart), err)
	if err != nil {
		return o.failTarget(ctx, target, report, err)
	}
	report.ArtifactBytes = size

	provider, err := o.resolver(ctx, target)
	if err != nil {
		return o.failTarget(ctx, target, report, NewUploadError("failed to resolve storage provider", err))
	}

	uploadStart := o.now()
	descriptor, err := provider.Upload(ctx, outputPath, fileName)
	if err != nil {
		o.logger.LogUpload(target.Name, "", o.now().Sub(uploadStart), err)
		return o.failTarget(ctx, target, report, NewUploadError("failed to upload artifact", err))
	}
	report.Remote = descriptor.String()
	o.logger.LogUpload(target.Name, report.Remote, o.now().Sub(uploadStart), nil)

	// The baseline must be read before the new success row is written,
	// otherwise the artifact would be compared against itself.
	previous, err := o.registry.PreviousArtifactSize(ctx, target.ID)
	if err != nil {
		return o.failTarget(ctx, target, report, NewRegistryError("failed to read previous artifact size", err))
	}

	report.State = StateVerifying
	if verr := o.verifier.Check(previous, size); verr != nil {
		// The upload already happened, so the anomalous artifact is
		// preserved offsite, but the run is recorded as failed end to end:
		// last-run does not advance and the target stays overdue.
		detail := verr.Error()
		if rerr := o.registry.RecordFailure(ctx, target.ID, o.now().UTC(), detail); rerr != nil {
			o.logger.WithField("target", target.Name).Errorf("Failed to write anomaly audit record: %v", rerr)
		}
		o.notifier.Notify(ctx, target.FailureURL, detail)
		report.State = StateFailed
		report.Err = verr
		return report
	}

	if err := o.registry.RecordSuccess(ctx, target.ID, o.now().UTC(), size); err != nil {
		return o.failTarget(ctx, target, report, NewRegistryError("failed to write success audit record", err))
	}
	o.notifier.Notify(ctx, target.SuccessURL, descriptor.String())
	report.State = StateSucceeded
	return report
}

// failTarget converts a target-scoped error into an audit failure row plus a
// best-effort failure notification, keeping the batch alive.
func (o *Orchestrator) failTarget(ctx context.Context, target Target, report TargetReport, cause error) TargetReport {
	detail := fmt.Sprintf("backup of target %q failed: %v", target.Name, cause)
	o.logger.WithField("target", target.Name).Error(detail)

	if err := o.registry.RecordFailure(ctx, target.ID, o.now().UTC(), detail); err != nil {
		o.logger.WithField("target", target.Name).Errorf("Failed to write failure audit record: %v", err)
	}
	o.notifier.Notify(ctx, target.FailureURL, detail)

	report.State = StateFailed
	report.Err = cause
	return report
}
