package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbak/internal/backup"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pgbak.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTarget(name string) backup.Target {
	return backup.Target{
		Name:              name,
		ConnectionString:  "postgres://backup@db/" + name,
		FrequencyHours:    24,
		ArchivePassphrase: "secret",
		ExcludeTables:     []string{"sessions", "audit_archive"},
		SuccessURL:        "https://hc/" + name + "/success",
		Storage: backup.StorageSettings{
			Provider: "b2",
			KeyID:    "key-id",
			AppKey:   "app-key",
			Bucket:   "offsite",
		},
	}
}

func TestStore_CreateAndGetTarget(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	got, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "billing", got.Name)
	assert.Equal(t, "postgres://backup@db/billing", got.ConnectionString)
	assert.Equal(t, 24, got.FrequencyHours)
	assert.Equal(t, "secret", got.ArchivePassphrase)
	assert.Equal(t, []string{"sessions", "audit_archive"}, got.ExcludeTables)
	assert.Equal(t, "b2", got.Storage.Provider)
	assert.Equal(t, "app-key", got.Storage.AppKey)
	assert.Nil(t, got.LastRun, "a fresh target has never run")
	assert.Empty(t, got.LastResult)

	byName, err := store.GetTargetByName(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, got, byName)
}

func TestStore_TargetNameIsUnique(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	_, err = store.CreateTarget(ctx, sampleTarget("billing"))
	assert.Error(t, err)
}

func TestStore_GetTargetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetTarget(context.Background(), 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = store.GetTargetByName(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_UpdateTarget(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	target, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	target.FrequencyHours = 6
	target.ExcludeTables = nil
	require.NoError(t, store.UpdateTarget(ctx, target))

	got, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 6, got.FrequencyHours)
	assert.Empty(t, got.ExcludeTables)
}

func TestStore_ListCandidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.CreateTarget(ctx, sampleTarget("alpha"))
	require.NoError(t, err)
	_, err = store.CreateTarget(ctx, sampleTarget("beta"))
	require.NoError(t, err)

	all, err := store.ListCandidates(ctx, backup.TargetFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := store.ListCandidates(ctx, backup.TargetFilter{TargetID: first})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "alpha", one[0].Name)
}

func TestStore_RecordSuccessAdvancesLastRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	ts := time.Date(2026, 8, 20, 3, 15, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, id, ts, 50000))

	got, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, ts, *got.LastRun)
	assert.Equal(t, backup.OutcomeSuccess, got.LastResult)

	trail, err := store.AuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, backup.OutcomeSuccess, trail[0].Outcome)
	require.NotNil(t, trail[0].ArtifactBytes)
	assert.Equal(t, int64(50000), *trail[0].ArtifactBytes)
}

func TestStore_RecordFailureKeepsTargetOverdue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	ts := time.Date(2026, 8, 20, 3, 15, 0, 0, time.UTC)
	require.NoError(t, store.RecordFailure(ctx, id, ts, "dump failed"))

	got, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.LastRun, "a plain failure must not advance last_backup")
	assert.Equal(t, backup.OutcomeFailure, got.LastResult)

	trail, err := store.AuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, backup.OutcomeFailure, trail[0].Outcome)
	assert.Equal(t, "dump failed", trail[0].Detail)
	assert.Nil(t, trail[0].ArtifactBytes)
}

func TestStore_FailureAfterSuccessKeepsOldLastRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	successTs := time.Date(2026, 8, 19, 3, 15, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, id, successTs, 100000))

	// A size-drift anomaly lands as a failure row: the result flips but the
	// last-run marker stays on the old success so the target remains overdue.
	failTs := time.Date(2026, 8, 20, 3, 15, 0, 0, time.UTC)
	require.NoError(t, store.RecordFailure(ctx, id, failTs, "size drift 66.67%"))

	got, err := store.GetTarget(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, successTs, *got.LastRun, "a failed run must not advance last_backup")
	assert.Equal(t, backup.OutcomeFailure, got.LastResult)
}

func TestStore_PreviousArtifactSize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	size, err := store.PreviousArtifactSize(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, size, "no baseline before the first success")

	base := time.Date(2026, 8, 18, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, id, base, 40000))
	require.NoError(t, store.RecordSuccess(ctx, id, base.Add(24*time.Hour), 42000))
	// A newer failure must not shadow the latest successful size.
	require.NoError(t, store.RecordFailure(ctx, id, base.Add(48*time.Hour), "broken"))

	size, err = store.PreviousArtifactSize(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, size)
	assert.Equal(t, int64(42000), *size)
}

func TestStore_DeleteTargetCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)
	require.NoError(t, store.RecordSuccess(ctx, id, time.Now().UTC(), 50000))
	require.NoError(t, store.RecordFailure(ctx, id, time.Now().UTC(), "later failure"))

	require.NoError(t, store.DeleteTarget(ctx, id))

	_, err = store.GetTarget(ctx, id)
	assert.Error(t, err)

	trail, err := store.AuditTrail(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, trail, "audit rows must cascade away with the target")
}

func TestStore_AuditTrailOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateTarget(ctx, sampleTarget("billing"))
	require.NoError(t, err)

	base := time.Date(2026, 8, 18, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, id, base, 100))
	require.NoError(t, store.RecordFailure(ctx, id, base.Add(time.Hour), "middle"))
	require.NoError(t, store.RecordSuccess(ctx, id, base.Add(2*time.Hour), 300))

	trail, err := store.AuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, base.Add(2*time.Hour), trail[0].Timestamp, "most recent first")
	assert.Equal(t, "middle", trail[1].Detail)
	assert.Equal(t, base, trail[2].Timestamp)
}

func TestStore_ListCandidatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	store := NewStore(db, nil)
	_, err = store.ListCandidates(context.Background(), backup.TargetFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list targets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordSuccessRollsBackOnUpdateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE targets").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewStore(db, nil)
	err = store.RecordSuccess(context.Background(), 1, time.Now().UTC(), 50000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update target run marker")
	assert.NoError(t, mock.ExpectationsWereMet())
}
