package invalidation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"encore.dev/storage/sqldb"
)

// AuditRecord is one rule firing: which rule's event type triggered it,
// which patterns were rendered, how many entries it deleted, and who
// triggered it.
type AuditRecord struct {
	ID          int64
	EventType   string
	Patterns    []string
	TriggeredBy string
	Deleted     int
	AtMillis    int64
}

// AuditStats summarizes recent firings.
type AuditStats struct {
	TotalFirings      int64
	ByEventType       map[string]int64
	TotalEntriesGone  int64
	MostFrequentEvent string
}

// AuditLogger persists fired invalidations to Postgres via an append-only
// table, so operators can answer "why did this key disappear" after the
// fact.
type AuditLogger struct {
	db *sqldb.Database
}

// NewAuditLogger creates the audit table if absent and returns a ready logger.
func NewAuditLogger(db *sqldb.Database) (*AuditLogger, error) {
	logger := &AuditLogger{db: db}
	if err := logger.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *AuditLogger) ensureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invalidation_audit (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			patterns JSONB NOT NULL,
			triggered_by TEXT NOT NULL,
			entries_deleted INTEGER NOT NULL,
			at_millis BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_invalidation_audit_at_millis ON invalidation_audit (at_millis DESC)`)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_invalidation_audit_event_type ON invalidation_audit (event_type)`)
	return err
}

// Insert writes one audit record synchronously.
func (l *AuditLogger) Insert(ctx context.Context, rec AuditRecord) error {
	patternsJSON, err := json.Marshal(rec.Patterns)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO invalidation_audit (event_type, patterns, triggered_by, entries_deleted, at_millis)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.EventType, patternsJSON, rec.TriggeredBy, rec.Deleted, rec.AtMillis)
	return err
}

// InsertAsync writes the record with a background context, logging failures
// rather than propagating them. Audit persistence must never block or fail
// a rule firing.
func (l *AuditLogger) InsertAsync(rec AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Insert(ctx, rec); err != nil {
		log.Printf("invalidation: audit insert failed for event type %q: %v", rec.EventType, err)
	}
}

// GetRecent returns the most recent records, newest first, optionally
// filtered by event type.
func (l *AuditLogger) GetRecent(ctx context.Context, limit, offset int, eventTypeFilter string) ([]AuditRecord, error) {
	var rows *sqldb.Rows
	var err error
	if eventTypeFilter != "" {
		rows, err = l.db.Query(ctx, `
			SELECT id, event_type, patterns, triggered_by, entries_deleted, at_millis
			FROM invalidation_audit WHERE event_type = $1
			ORDER BY at_millis DESC LIMIT $2 OFFSET $3
		`, eventTypeFilter, limit, offset)
	} else {
		rows, err = l.db.Query(ctx, `
			SELECT id, event_type, patterns, triggered_by, entries_deleted, at_millis
			FROM invalidation_audit ORDER BY at_millis DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// GetByTimeRange returns records with at_millis in [startMillis, endMillis].
func (l *AuditLogger) GetByTimeRange(ctx context.Context, startMillis, endMillis int64, limit int) ([]AuditRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, event_type, patterns, triggered_by, entries_deleted, at_millis
		FROM invalidation_audit WHERE at_millis BETWEEN $1 AND $2
		ORDER BY at_millis DESC LIMIT $3
	`, startMillis, endMillis, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sqldb.Rows) ([]AuditRecord, error) {
	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var patternsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.EventType, &patternsJSON, &rec.TriggeredBy, &rec.Deleted, &rec.AtMillis); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(patternsJSON, &rec.Patterns); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetStats summarizes firings since sinceMillis.
func (l *AuditLogger) GetStats(ctx context.Context, sinceMillis int64) (*AuditStats, error) {
	rows, err := l.db.Query(ctx, `
		SELECT event_type, COUNT(*), SUM(entries_deleted)
		FROM invalidation_audit WHERE at_millis >= $1
		GROUP BY event_type
	`, sinceMillis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &AuditStats{ByEventType: make(map[string]int64)}
	var topEventType string
	var topCount int64
	for rows.Next() {
		var eventType string
		var count, deleted int64
		if err := rows.Scan(&eventType, &count, &deleted); err != nil {
			return nil, err
		}
		stats.ByEventType[eventType] = count
		stats.TotalFirings += count
		stats.TotalEntriesGone += deleted
		if count > topCount {
			topCount = count
			topEventType = eventType
		}
	}
	stats.MostFrequentEvent = topEventType
	return stats, rows.Err()
}

// Cleanup deletes records older than olderThanMillis, returning the count removed.
func (l *AuditLogger) Cleanup(ctx context.Context, olderThanMillis int64) (int64, error) {
	res, err := l.db.Exec(ctx, `DELETE FROM invalidation_audit WHERE at_millis < $1`, olderThanMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
