package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type recordedAudit struct {
	targetID int64
	bytes    int64
	detail   string
}

type fakeRegistry struct {
	targets  []Target
	prevSize map[int64]int64

	successes []recordedAudit
	failures  []recordedAudit

	listErr    error
	successErr error
}

func (f *fakeRegistry) ListCandidates(ctx context.Context, filter TargetFilter) ([]Target, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if filter.TargetID == 0 {
		return f.targets, nil
	}
	for _, t := range f.targets {
		if t.ID == filter.TargetID {
			return []Target{t}, nil
		}
	}
	return nil, nil
}

func (f *fakeRegistry) PreviousArtifactSize(ctx context.Context, targetID int64) (*int64, error) {
	if size, ok := f.prevSize[targetID]; ok {
		return &size, nil
	}
	return nil, nil
}

func (f *fakeRegistry) RecordSuccess(ctx context.Context, targetID int64, ts time.Time, artifactBytes int64) error {
	if f.successErr != nil {
		return f.successErr
	}
	f.successes = append(f.successes, recordedAudit{targetID: targetID, bytes: artifactBytes})
	return nil
}

func (f *fakeRegistry) RecordFailure(ctx context.Context, targetID int64, ts time.Time, detail string) error {
	f.failures = append(f.failures, recordedAudit{targetID: targetID, detail: detail})
	return nil
}

type fakePipeline struct {
	sizes map[string]int64 // keyed by connection string
	errs  map[string]error
	runs  []string
}

func (f *fakePipeline) Run(ctx context.Context, req PipelineRequest) (int64, error) {
	f.runs = append(f.runs, req.ConnectionString)
	if err := f.errs[req.ConnectionString]; err != nil {
		return 0, err
	}
	return f.sizes[req.ConnectionString], nil
}

type notifyCall struct {
	url  string
	body string
}

type fakeNotifier struct {
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, url, body string) {
	if url == "" {
		return
	}
	f.calls = append(f.calls, notifyCall{url: url, body: body})
}

func (f *fakeNotifier) urls() []string {
	urls := make([]string, len(f.calls))
	for i, c := range f.calls {
		urls[i] = c.url
	}
	return urls
}

type fakeStorage struct {
	err     error
	uploads []string
}

func (f *fakeStorage) Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, remoteName)
	return &RemoteDescriptor{Provider: "s3", Bucket: "offsite", Key: remoteName}, nil
}

// --- harness ---

type orchestratorFixture struct {
	orch     *Orchestrator
	registry *fakeRegistry
	pipeline *fakePipeline
	notifier *fakeNotifier
	storage  *fakeStorage
}

func newFixture(t *testing.T, targets []Target) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		registry: &fakeRegistry{targets: targets, prevSize: map[int64]int64{}},
		pipeline: &fakePipeline{sizes: map[string]int64{}, errs: map[string]error{}},
		notifier: &fakeNotifier{},
		storage:  &fakeStorage{},
	}

	cfg := Config{
		LockPath:      filepath.Join(t.TempDir(), "test.lock"),
		WorkDirParent: t.TempDir(),
	}
	f.orch = NewOrchestrator(cfg, f.registry, nil)
	f.orch.SetPipeline(f.pipeline)
	f.orch.SetNotifier(f.notifier)
	f.orch.SetStorageResolver(func(ctx context.Context, target Target) (StorageProvider, error) {
		return f.storage, nil
	})
	return f
}

func dueTarget(id int64, name string) Target {
	return Target{
		ID:               id,
		Name:             name,
		ConnectionString: "postgres://backup@db/" + name,
		FrequencyHours:   24,
		StartURL:         "https://hc/" + name + "/start",
		SuccessURL:       "https://hc/" + name + "/success",
		FailureURL:       "https://hc/" + name + "/failure",
	}
}

// --- tests ---

func TestOrchestrator_SuccessfulRun(t *testing.T) {
	target := dueTarget(1, "billing")
	f := newFixture(t, []Target{target})
	f.pipeline.sizes[target.ConnectionString] = 50000

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Targets, 1)

	got := report.Targets[0]
	assert.Equal(t, StateSucceeded, got.State)
	assert.Equal(t, int64(50000), got.ArtifactBytes)
	assert.Equal(t, "s3://offsite/billing.sql.zst", got.Remote)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.Failed())

	require.Len(t, f.registry.successes, 1)
	assert.Equal(t, recordedAudit{targetID: 1, bytes: 50000}, f.registry.successes[0])
	assert.Empty(t, f.registry.failures)

	assert.Equal(t, []string{"https://hc/billing/start", "https://hc/billing/success"}, f.notifier.urls())
	assert.Equal(t, "s3://offsite/billing.sql.zst", f.notifier.calls[1].body)
}

func TestOrchestrator_SkipsTargetsNotDue(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour)
	target := dueTarget(1, "billing")
	target.LastRun = &recent
	f := newFixture(t, []Target{target})

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, report.Targets[0].State)
	assert.Empty(t, f.pipeline.runs, "the pipeline must not run for a skipped target")
	assert.Empty(t, f.notifier.calls, "skipping is silent")
	assert.Empty(t, f.registry.successes)
	assert.Empty(t, f.registry.failures)
}

func TestOrchestrator_ForceOverridesSchedule(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour)
	target := dueTarget(1, "billing")
	target.LastRun = &recent
	f := newFixture(t, []Target{target})
	f.pipeline.sizes[target.ConnectionString] = 50000

	report, err := f.orch.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, report.Targets[0].State)
}

func TestOrchestrator_AnomalyAfterUpload(t *testing.T) {
	target := dueTarget(1, "billing")
	f := newFixture(t, []Target{target})
	f.registry.prevSize[1] = 100000
	f.pipeline.sizes[target.ConnectionString] = 200000

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := report.Targets[0]
	assert.Equal(t, StateFailed, got.State)
	assert.True(t, IsAnomaly(got.Err))
	assert.NotEmpty(t, got.Remote, "the anomalous artifact stays offsite")
	assert.Len(t, f.storage.uploads, 1)

	// The anomaly is audited as a failure with the drift detail; no success
	// row is written, so last-run stays put and the target remains overdue.
	require.Len(t, f.registry.failures, 1)
	assert.Contains(t, f.registry.failures[0].detail, "66.67")
	assert.Empty(t, f.registry.successes)

	assert.Equal(t, []string{"https://hc/billing/start", "https://hc/billing/failure"}, f.notifier.urls())
}

func TestOrchestrator_PipelineFailureIsIsolated(t *testing.T) {
	targets := []Target{dueTarget(1, "alpha"), dueTarget(2, "beta"), dueTarget(3, "gamma")}
	f := newFixture(t, targets)
	f.pipeline.sizes[targets[0].ConnectionString] = 40000
	f.pipeline.errs[targets[1].ConnectionString] = NewPipelineError("dump exploded", nil)
	f.pipeline.sizes[targets[2].ConnectionString] = 60000

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Targets, 3)

	assert.Equal(t, StateSucceeded, report.Targets[0].State)
	assert.Equal(t, StateFailed, report.Targets[1].State)
	assert.Equal(t, StateSucceeded, report.Targets[2].State, "a failed target must not abort the batch")
	assert.Equal(t, 1, report.Failed())

	require.Len(t, f.registry.failures, 1)
	assert.Equal(t, int64(2), f.registry.failures[0].targetID)
	assert.Contains(t, f.registry.failures[0].detail, `backup of target "beta" failed`)
	assert.Len(t, f.registry.successes, 2)
	assert.Len(t, f.storage.uploads, 2, "a failed pipeline must not reach the uploader")
}

func TestOrchestrator_UploadFailure(t *testing.T) {
	target := dueTarget(1, "billing")
	f := newFixture(t, []Target{target})
	f.pipeline.sizes[target.ConnectionString] = 50000
	f.storage.err = errors.New("bucket does not exist")

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := report.Targets[0]
	assert.Equal(t, StateFailed, got.State)
	assert.True(t, IsUploadError(got.Err))
	require.Len(t, f.registry.failures, 1)
	assert.Empty(t, f.registry.successes)
	assert.Equal(t, []string{"https://hc/billing/start", "https://hc/billing/failure"}, f.notifier.urls())
}

func TestOrchestrator_TargetFilter(t *testing.T) {
	targets := []Target{dueTarget(1, "alpha"), dueTarget(2, "beta")}
	f := newFixture(t, targets)
	f.pipeline.sizes[targets[1].ConnectionString] = 50000

	report, err := f.orch.Run(context.Background(), RunOptions{TargetID: 2})
	require.NoError(t, err)

	require.Len(t, report.Targets, 1)
	assert.Equal(t, "beta", report.Targets[0].TargetName)
}

func TestOrchestrator_LockBusy(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "busy.lock")
	held, err := AcquireInstanceLock(lockPath)
	require.NoError(t, err)
	defer held.Release()

	f := newFixture(t, []Target{dueTarget(1, "billing")})
	f.orch.cfg.LockPath = lockPath

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, IsLockBusy(err))
	assert.Nil(t, report)
	assert.Empty(t, f.pipeline.runs, "nothing runs while another instance holds the lock")
}

func TestOrchestrator_RegistryListFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.listErr = errors.New("database is locked")

	_, err := f.orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	var be *BackupError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, BackupErrorTypeRegistry, be.Type)
}

func TestOrchestrator_SuccessRecordFailureFailsTarget(t *testing.T) {
	target := dueTarget(1, "billing")
	f := newFixture(t, []Target{target})
	f.pipeline.sizes[target.ConnectionString] = 50000
	f.registry.successErr = errors.New("disk full")

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := report.Targets[0]
	assert.Equal(t, StateFailed, got.State)
	require.Len(t, f.registry.failures, 1, "an unrecordable success must surface as a failure")
}

func TestOrchestrator_ArchiveNameOverridesFileName(t *testing.T) {
	target := dueTarget(1, "billing")
	target.ArchiveName = "billing-prod"
	f := newFixture(t, []Target{target})
	f.pipeline.sizes[target.ConnectionString] = 50000

	report, err := f.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "s3://offsite/billing-prod.sql.zst", report.Targets[0].Remote)
}
