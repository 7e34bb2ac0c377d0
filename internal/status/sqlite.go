package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const createStatusTable = `CREATE TABLE IF NOT EXISTS domain_status (
    domain           TEXT PRIMARY KEY,
    phase            TEXT NOT NULL DEFAULT '',
    message          TEXT NOT NULL DEFAULT '',
    last_attempt     INTEGER,
    attempt_count    INTEGER NOT NULL DEFAULT 0,
    last_sync_time   INTEGER,
    record_count     INTEGER NOT NULL DEFAULT 0,
    refresh_interval TEXT NOT NULL DEFAULT ''
);`

const selectStatusColumns = `SELECT domain, phase, message, last_attempt, attempt_count,
       last_sync_time, record_count, refresh_interval FROM domain_status`

// sqliteStatusPersistence implements StatusPersistence on the domain_status
// table of the local cache database. Timestamps are stored as Unix nanoseconds.
type sqliteStatusPersistence struct {
	db *sql.DB
}

// NewSQLiteStatusPersistence creates the domain_status table if needed and
// returns a StatusPersistence backed by it. The caller owns db.
func NewSQLiteStatusPersistence(ctx context.Context, db *sql.DB) (StatusPersistence, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if _, err := db.ExecContext(ctx, createStatusTable); err != nil {
		return nil, fmt.Errorf("failed to create domain_status table: %w", err)
	}
	return &sqliteStatusPersistence{db: db}, nil
}

func (p *sqliteStatusPersistence) SaveStatus(ctx context.Context, domain string, status *DomainStatus) error {
	if status == nil {
		return fmt.Errorf("status for domain '%s' cannot be nil", domain)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO domain_status (domain, phase, message, last_attempt, attempt_count,
		     last_sync_time, record_count, refresh_interval)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		     phase = excluded.phase,
		     message = excluded.message,
		     last_attempt = excluded.last_attempt,
		     attempt_count = excluded.attempt_count,
		     last_sync_time = excluded.last_sync_time,
		     record_count = excluded.record_count,
		     refresh_interval = excluded.refresh_interval`,
		domain,
		string(status.Phase),
		status.Message,
		toNullUnix(status.LastAttempt),
		status.AttemptCount,
		toNullUnix(status.LastSyncTime),
		status.RecordCount,
		status.RefreshInterval,
	)
	if err != nil {
		return fmt.Errorf("failed to save status for domain '%s': %w", domain, err)
	}
	return nil
}

func (p *sqliteStatusPersistence) LoadStatus(ctx context.Context, domain string) (*DomainStatus, error) {
	row := p.db.QueryRowContext(ctx, selectStatusColumns+` WHERE domain = ?`, domain)
	_, status, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &DomainStatus{}, nil
		}
		return nil, fmt.Errorf("failed to load status for domain '%s': %w", domain, err)
	}
	return status, nil
}

func (p *sqliteStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*DomainStatus, error) {
	rows, err := p.db.QueryContext(ctx, selectStatusColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]*DomainStatus)
	for rows.Next() {
		domain, status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain status: %w", err)
		}
		result[domain] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate domain status: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (string, *DomainStatus, error) {
	var (
		domain       string
		phase        string
		status       DomainStatus
		lastAttempt  sql.NullInt64
		lastSyncTime sql.NullInt64
	)
	err := row.Scan(&domain, &phase, &status.Message, &lastAttempt, &status.AttemptCount,
		&lastSyncTime, &status.RecordCount, &status.RefreshInterval)
	if err != nil {
		return "", nil, err
	}
	status.Phase = SyncPhase(phase)
	status.LastAttempt = fromNullUnix(lastAttempt)
	status.LastSyncTime = fromNullUnix(lastSyncTime)
	return domain, &status, nil
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
