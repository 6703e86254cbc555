// Package registry implements the SQLite-backed target and audit store.
// It owns target definitions and the append-only audit trail; the
// orchestration core reaches it only through the backup.Registry contract.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pgbak/internal/backup"
	"pgbak/internal/logging"
)

// TimeLayout is the naive UTC timestamp format used in the database.
const TimeLayout = "20060102T150405"

// DefaultPath is the registry database location when none is configured.
const DefaultPath = "/usr/local/etc/pgbak/pgbak.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	connection_string TEXT NOT NULL,
	frequency_hrs INTEGER NOT NULL DEFAULT (24),
	archive_name TEXT,
	archive_passphrase TEXT,
	storage_provider TEXT,
	upload_key_id TEXT,
	upload_app_key TEXT,
	upload_bucket TEXT,
	exclude_tables TEXT,
	start_url TEXT,
	success_url TEXT,
	failure_url TEXT,
	last_backup TEXT,
	last_backup_result TEXT
);
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	target_id INTEGER NOT NULL,
	ts TEXT NOT NULL,
	outcome TEXT NOT NULL,
	artifact_bytes INTEGER,
	detail TEXT,
	CONSTRAINT audit_log_targets_FK FOREIGN KEY (target_id)
		REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS audit_log_target_ts ON audit_log(target_id, ts DESC);
`

// Store is the SQLite registry. It satisfies backup.Registry.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens (creating if necessary) the registry database at path.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection sidesteps
	// table-lock contention between the pool's connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle without running schema setup.
// Intended for tests that supply a mock or pre-migrated handle.
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const targetColumns = `id, name, connection_string, frequency_hrs,
	IFNULL(archive_name,''), IFNULL(archive_passphrase,''),
	IFNULL(storage_provider,''), IFNULL(upload_key_id,''),
	IFNULL(upload_app_key,''), IFNULL(upload_bucket,''),
	IFNULL(exclude_tables,''), IFNULL(start_url,''),
	IFNULL(success_url,''), IFNULL(failure_url,''),
	IFNULL(last_backup,''), IFNULL(last_backup_result,'')`

func scanTarget(row interface{ Scan(...interface{}) error }) (backup.Target, error) {
	var t backup.Target
	var excludes, lastBackup, lastResult string
	err := row.Scan(
		&t.ID, &t.Name, &t.ConnectionString, &t.FrequencyHours,
		&t.ArchiveName, &t.ArchivePassphrase,
		&t.Storage.Provider, &t.Storage.KeyID,
		&t.Storage.AppKey, &t.Storage.Bucket,
		&excludes, &t.StartURL, &t.SuccessURL, &t.FailureURL,
		&lastBackup, &lastResult,
	)
	if err != nil {
		return backup.Target{}, err
	}
	if excludes != "" {
		for _, table := range strings.Split(excludes, ",") {
			if table = strings.TrimSpace(table); table != "" {
				t.ExcludeTables = append(t.ExcludeTables, table)
			}
		}
	}
	if lastBackup != "" {
		ts, err := time.ParseInLocation(TimeLayout, lastBackup, time.UTC)
		if err != nil {
			return backup.Target{}, fmt.Errorf("corrupt last_backup timestamp %q: %w", lastBackup, err)
		}
		t.LastRun = &ts
	}
	t.LastResult = backup.RunOutcome(lastResult)
	return t, nil
}

// ListCandidates returns targets considered for a run, optionally narrowed
// to a single target id.
func (s *Store) ListCandidates(ctx context.Context, filter backup.TargetFilter) ([]backup.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets`
	var args []interface{}
	if filter.TargetID != 0 {
		query += ` WHERE id = ?`
		args = append(args, filter.TargetID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []backup.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// ListTargets returns all configured targets.
func (s *Store) ListTargets(ctx context.Context) ([]backup.Target, error) {
	return s.ListCandidates(ctx, backup.TargetFilter{})
}

// GetTarget fetches one target by id.
func (s *Store) GetTarget(ctx context.Context, id int64) (backup.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return backup.Target{}, fmt.Errorf("target %d not found", id)
	}
	return t, err
}

// GetTargetByName fetches one target by its unique name.
func (s *Store) GetTargetByName(ctx context.Context, name string) (backup.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE name = ?`, name)
	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return backup.Target{}, fmt.Errorf("target %q not found", name)
	}
	return t, err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateTarget inserts a new target and returns its id.
func (s *Store) CreateTarget(ctx context.Context, t backup.Target) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (name, connection_string, frequency_hrs, archive_name,
			archive_passphrase, storage_provider, upload_key_id, upload_app_key,
			upload_bucket, exclude_tables, start_url, success_url, failure_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.ConnectionString, t.FrequencyHours, nullable(t.ArchiveName),
		nullable(t.ArchivePassphrase), nullable(t.Storage.Provider),
		nullable(t.Storage.KeyID), nullable(t.Storage.AppKey),
		nullable(t.Storage.Bucket), nullable(strings.Join(t.ExcludeTables, ",")),
		nullable(t.StartURL), nullable(t.SuccessURL), nullable(t.FailureURL),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create target %q: %w", t.Name, err)
	}
	return res.LastInsertId()
}

// UpdateTarget rewrites a target's configuration. Last-run bookkeeping is
// untouched; only the orchestrator mutates it.
func (s *Store) UpdateTarget(ctx context.Context, t backup.Target) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE targets SET name=?, connection_string=?, frequency_hrs=?,
			archive_name=?, archive_passphrase=?, storage_provider=?,
			upload_key_id=?, upload_app_key=?, upload_bucket=?,
			exclude_tables=?, start_url=?, success_url=?, failure_url=?
		WHERE id = ?`,
		t.Name, t.ConnectionString, t.FrequencyHours, nullable(t.ArchiveName),
		nullable(t.ArchivePassphrase), nullable(t.Storage.Provider),
		nullable(t.Storage.KeyID), nullable(t.Storage.AppKey),
		nullable(t.Storage.Bucket), nullable(strings.Join(t.ExcludeTables, ",")),
		nullable(t.StartURL), nullable(t.SuccessURL), nullable(t.FailureURL),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update target %q: %w", t.Name, err)
	}
	return nil
}

// DeleteTarget removes a target; its audit rows cascade away with it.
func (s *Store) DeleteTarget(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete target %d: %w", id, err)
	}
	return nil
}

// PreviousArtifactSize returns the artifact size of the target's most recent
// successful run, or nil when the target has never succeeded.
func (s *Store) PreviousArtifactSize(ctx context.Context, targetID int64) (*int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_bytes FROM audit_log
		WHERE target_id = ? AND outcome = ? AND artifact_bytes IS NOT NULL
		ORDER BY ts DESC, id DESC LIMIT 1`,
		targetID, string(backup.OutcomeSuccess),
	).Scan(&size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous artifact size: %w", err)
	}
	return &size, nil
}

// RecordSuccess appends a success audit row and advances the target's
// last-run marker.
func (s *Store) RecordSuccess(ctx context.Context, targetID int64, ts time.Time, artifactBytes int64) error {
	stamp := ts.UTC().Format(TimeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (target_id, ts, outcome, artifact_bytes)
		VALUES (?, ?, ?, ?)`,
		targetID, stamp, string(backup.OutcomeSuccess), artifactBytes,
	); err != nil {
		return fmt.Errorf("failed to write success audit record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE targets SET last_backup = ?, last_backup_result = ? WHERE id = ?`,
		stamp, string(backup.OutcomeSuccess), targetID,
	); err != nil {
		return fmt.Errorf("failed to update target run marker: %w", err)
	}
	return tx.Commit()
}

// RecordFailure appends a failure audit row and marks the target's last
// result failed without advancing its last-run timestamp, so the target
// stays overdue. Size-drift anomalies go through the same path: the artifact
// may already be offsite, but the run still counts as failed.
func (s *Store) RecordFailure(ctx context.Context, targetID int64, ts time.Time, detail string) error {
	stamp := ts.UTC().Format(TimeLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (target_id, ts, outcome, detail)
		VALUES (?, ?, ?, ?)`,
		targetID, stamp, string(backup.OutcomeFailure), detail,
	); err != nil {
		return fmt.Errorf("failed to write failure audit record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE targets SET last_backup_result = ? WHERE id = ?`,
		string(backup.OutcomeFailure), targetID,
	); err != nil {
		return fmt.Errorf("failed to update target run marker: %w", err)
	}
	return tx.Commit()
}

// AuditTrail returns a target's audit records, most recent first.
func (s *Store) AuditTrail(ctx context.Context, targetID int64) ([]backup.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, ts, outcome, artifact_bytes, IFNULL(detail,'')
		FROM audit_log WHERE target_id = ?
		ORDER BY ts DESC, id DESC`,
		targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	defer rows.Close()

	var records []backup.AuditRecord
	for rows.Next() {
		var rec backup.AuditRecord
		var stamp string
		var bytes sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.TargetID, &stamp, &rec.Outcome, &bytes, &rec.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		ts, err := time.ParseInLocation(TimeLayout, stamp, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("corrupt audit timestamp %q: %w", stamp, err)
		}
		rec.Timestamp = ts
		if bytes.Valid {
			rec.ArtifactBytes = &bytes.Int64
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
