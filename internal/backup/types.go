package backup

import (
	"context"
	"time"
)

// Target represents one configured database backup job. Targets are owned by
// the registry; the orchestration core treats them as read-only input.
type Target struct {
	ID               int64  `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
	FrequencyHours   int    `json:"frequency_hrs" yaml:"frequency_hrs"`
	ArchiveName      string `json:"archive_name" yaml:"archive_name"`

	// ArchivePassphrase overrides the process-wide default when set.
	ArchivePassphrase string `json:"-" yaml:"-"`

	// Storage holds per-target upload settings; empty fields fall back to
	// the process-wide defaults at run time.
	Storage StorageSettings `json:"storage" yaml:"storage"`

	// ExcludeTables lists table names omitted from the dump.
	ExcludeTables []string `json:"exclude_tables,omitempty" yaml:"exclude_tables,omitempty"`

	// Healthcheck URLs, each independently optional.
	StartURL   string `json:"start_url,omitempty" yaml:"start_url,omitempty"`
	SuccessURL string `json:"success_url,omitempty" yaml:"success_url,omitempty"`
	FailureURL string `json:"failure_url,omitempty" yaml:"failure_url,omitempty"`

	// LastRun and LastResult are mutated only by the orchestrator after a
	// run attempt. A nil LastRun means the target has never been run.
	LastRun    *time.Time `json:"last_backup,omitempty" yaml:"last_backup,omitempty"`
	LastResult RunOutcome `json:"last_backup_result,omitempty" yaml:"last_backup_result,omitempty"`
}

// Passphrase returns the target's passphrase, falling back to the supplied
// process-wide default.
func (t Target) Passphrase(defaultPassphrase string) string {
	if t.ArchivePassphrase != "" {
		return t.ArchivePassphrase
	}
	return defaultPassphrase
}

// AuditRecord captures one run attempt's outcome for one target. Records are
// append-only and totally ordered by timestamp per target.
type AuditRecord struct {
	ID            int64      `json:"id" yaml:"id"`
	TargetID      int64      `json:"target_id" yaml:"target_id"`
	Timestamp     time.Time  `json:"ts" yaml:"ts"`
	Outcome       RunOutcome `json:"outcome" yaml:"outcome"`
	ArtifactBytes *int64     `json:"artifact_bytes,omitempty" yaml:"artifact_bytes,omitempty"`
	Detail        string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RunOutcome is the recorded result of a run attempt.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "Success"
	OutcomeFailure RunOutcome = "Failure"
)

// RunState tracks a target's progress through a single orchestration run.
type RunState string

const (
	StatePending   RunState = "PENDING"
	StateSkipped   RunState = "SKIPPED"
	StateRunning   RunState = "RUNNING"
	StateVerifying RunState = "VERIFYING"
	StateSucceeded RunState = "SUCCEEDED"
	StateFailed    RunState = "FAILED"
)

// TargetFilter narrows the candidate set for a run.
type TargetFilter struct {
	// TargetID restricts the run to a single target when non-zero.
	TargetID int64
}

// Registry is the narrow contract the core holds against the target store.
// The store itself (schema, CRUD, row shaping) is an external collaborator.
type Registry interface {
	// ListCandidates returns the targets considered for this run. The due
	// decision itself stays with the scheduler.
	ListCandidates(ctx context.Context, filter TargetFilter) ([]Target, error)

	// PreviousArtifactSize returns the artifact size of the most recent
	// successful run for the target, or nil if the target has never
	// succeeded.
	PreviousArtifactSize(ctx context.Context, targetID int64) (*int64, error)

	// RecordSuccess appends a success audit row and advances the target's
	// last-run marker and result.
	RecordSuccess(ctx context.Context, targetID int64, ts time.Time, artifactBytes int64) error

	// RecordFailure appends a failure audit row and marks the target's last
	// result as failed. The last-run timestamp is left untouched so the
	// target stays overdue; this holds for size-drift anomalies too, even
	// though their artifact is already offsite.
	RecordFailure(ctx context.Context, targetID int64, ts time.Time, detail string) error
}

// RemoteDescriptor identifies an uploaded artifact in object storage.
type RemoteDescriptor struct {
	Provider string `json:"provider"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
}

// String renders the descriptor in scheme://bucket/key form.
func (d RemoteDescriptor) String() string {
	if d.URL != "" {
		return d.URL
	}
	return d.Provider + "://" + d.Bucket + "/" + d.Key
}

// StorageProvider uploads a finished artifact. Implementations perform a
// single attempt; retry policy belongs to the caller.
type StorageProvider interface {
	Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error)
}

// Notifier posts run lifecycle signals to operator-supplied healthcheck URLs.
// Implementations must never surface errors to the caller.
type Notifier interface {
	Notify(ctx context.Context, url, body string)
}

// Pipeline produces one artifact for one target and reports its size.
type Pipeline interface {
	Run(ctx context.Context, req PipelineRequest) (int64, error)
}
