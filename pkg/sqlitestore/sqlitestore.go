// Package sqlitestore is a second, embedded implementation of
// eventstore.Store and invertedindex.Store, for local development and
// tests that want real transactional ACID behaviour without a DynamoDB
// table. It uses the pure-Go modernc.org/sqlite driver with a WAL-mode
// pragma and a functional-options constructor, against this module's own
// journal/snapshot/outbox/inverted_index tables rather than one wide
// events table, with CAS conditions expressed as SQL WHERE clauses
// instead of DynamoDB ConditionExpressions.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plaenen/eventstore/pkg/eventstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	seq_nr         INTEGER NOT NULL,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        BLOB NOT NULL,
	metadata       BLOB,
	PRIMARY KEY (aggregate_type, aggregate_id, seq_nr)
);

CREATE TABLE IF NOT EXISTS snapshot (
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	aggregate      BLOB NOT NULL,
	seq_nr         INTEGER NOT NULL,
	version        INTEGER NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id)
);

CREATE TABLE IF NOT EXISTS outbox (
	event_id       TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        BLOB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	attempts       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS inverted_index (
	keyword      TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	PRIMARY KEY (keyword, aggregate_id)
);
`

// Store implements eventstore.Store and invertedindex.Store against an
// embedded SQLite database, one row per journal/snapshot/outbox/index
// entry.
type Store struct {
	db               *sql.DB
	snapshotInterval int64
}

// Option configures a Store at construction time.
type Option func(*config)

type config struct {
	dsn              string
	walMode          bool
	snapshotInterval int64
}

// WithDSN sets the data source name (a file path, or ":memory:").
func WithDSN(dsn string) Option { return func(c *config) { c.dsn = dsn } }

// WithWALMode toggles write-ahead logging. Default true. The pragma is
// never issued for a ":memory:" DSN, whatever this option says.
func WithWALMode(enabled bool) Option { return func(c *config) { c.walMode = enabled } }

// WithSnapshotInterval sets how many journal events elapse between
// automatic snapshots. Default is 100, matching dynamostore's default.
func WithSnapshotInterval(n int64) Option {
	return func(c *config) { c.snapshotInterval = n }
}

// Open opens (creating if necessary) a SQLite-backed Store and runs its
// schema migration automatically.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := config{dsn: "eventstore.db", walMode: true, snapshotInterval: 100}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", cfg.dsn, err)
	}
	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	if cfg.walMode && cfg.dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: wal mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	return &Store{db: db, snapshotInterval: cfg.snapshotInterval}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SnapshotInterval implements eventstore.Store.
func (s *Store) SnapshotInterval() int64 { return s.snapshotInterval }

// Persist implements eventstore.Store. Go's database/sql transactions give
// us atomicity across the journal/outbox/snapshot inserts directly; the
// per-row CAS conditions dynamostore expresses as ConditionExpressions
// become ordinary SQL: the journal's composite primary key already
// forbids a duplicate (aggregate_id, seq_nr), and the snapshot upsert's
// CAS is an explicit WHERE on the expected prior version.
func (s *Store) Persist(ctx context.Context, domainEvents []eventstore.SerializedDomainEvent, integrationEvents []eventstore.SerializedIntegrationEvent, snapshot *eventstore.PersistedSnapshot) error {
	if len(domainEvents) == 0 && len(integrationEvents) == 0 && snapshot == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventstore.Connection(err)
	}
	defer tx.Rollback()

	for _, e := range domainEvents {
		metadata, _ := json.Marshal(e.Metadata)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journal (aggregate_type, aggregate_id, seq_nr, event_id, event_type, payload, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.AggregateType, e.AggregateID, e.SeqNr, e.EventID, e.EventType, e.Payload, metadata)
		if err != nil {
			if isUniqueConstraint(err) {
				return &optimisticLockError{cause: err}
			}
			return eventstore.Connection(err)
		}
	}

	for _, e := range integrationEvents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, payload, status, attempts)
			VALUES (?, ?, ?, ?, ?, 'PENDING', 0)`,
			e.EventID, e.AggregateType, e.AggregateID, e.EventType, e.Payload)
		if err != nil {
			return eventstore.Connection(err)
		}
	}

	if snapshot != nil {
		expected := snapshot.Version - 1
		res, err := tx.ExecContext(ctx, `
			UPDATE snapshot SET aggregate = ?, seq_nr = ?, version = ?
			WHERE aggregate_type = ? AND aggregate_id = ? AND version = ?`,
			snapshot.Aggregate, snapshot.SeqNr, snapshot.Version,
			snapshot.AggregateType, snapshot.AggregateID, expected)
		if err != nil {
			return eventstore.Connection(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return eventstore.Connection(err)
		}
		if affected == 0 {
			// No existing row matched the expected version: either this is
			// the first snapshot (expected == 0, no row yet) or the CAS lost.
			res, err := tx.ExecContext(ctx, `
				INSERT INTO snapshot (aggregate_type, aggregate_id, aggregate, seq_nr, version)
				SELECT ?, ?, ?, ?, ?
				WHERE NOT EXISTS (SELECT 1 FROM snapshot WHERE aggregate_type = ? AND aggregate_id = ?)`,
				snapshot.AggregateType, snapshot.AggregateID, snapshot.Aggregate, snapshot.SeqNr, snapshot.Version,
				snapshot.AggregateType, snapshot.AggregateID)
			if err != nil {
				return eventstore.Connection(err)
			}
			inserted, err := res.RowsAffected()
			if err != nil {
				return eventstore.Connection(err)
			}
			if inserted == 0 {
				return eventstore.ErrOptimisticLock
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return eventstore.Connection(err)
	}
	return nil
}

// LoadEvents implements eventstore.Store.
func (s *Store) LoadEvents(ctx context.Context, aggregateType, aggregateID string, fromSeqNr int64) ([]eventstore.SerializedDomainEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq_nr, event_id, event_type, payload, metadata FROM journal
		WHERE aggregate_type = ? AND aggregate_id = ? AND seq_nr >= ?
		ORDER BY seq_nr ASC`, aggregateType, aggregateID, fromSeqNr)
	if err != nil {
		return nil, eventstore.Connection(err)
	}
	defer rows.Close()

	var events []eventstore.SerializedDomainEvent
	for rows.Next() {
		var e eventstore.SerializedDomainEvent
		var metadata []byte
		if err := rows.Scan(&e.SeqNr, &e.EventID, &e.EventType, &e.Payload, &metadata); err != nil {
			return nil, eventstore.Deserialization(err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, eventstore.Deserialization(err)
			}
		}
		e.AggregateType = aggregateType
		e.AggregateID = aggregateID
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eventstore.Connection(err)
	}
	return events, nil
}

// GetSnapshot implements eventstore.Store.
func (s *Store) GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (eventstore.PersistedSnapshot, bool, error) {
	var snap eventstore.PersistedSnapshot
	snap.AggregateType = aggregateType
	snap.AggregateID = aggregateID

	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate, seq_nr, version FROM snapshot
		WHERE aggregate_type = ? AND aggregate_id = ?`, aggregateType, aggregateID,
	).Scan(&snap.Aggregate, &snap.SeqNr, &snap.Version)
	if err == sql.ErrNoRows {
		return eventstore.PersistedSnapshot{}, false, nil
	}
	if err != nil {
		return eventstore.PersistedSnapshot{}, false, eventstore.Connection(err)
	}
	return snap, true, nil
}

// Commit implements invertedindex.Store.
func (s *Store) Commit(ctx context.Context, aggregateID, keyword string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO inverted_index (keyword, aggregate_id) VALUES (?, ?)`, keyword, aggregateID)
	if err != nil {
		if isUniqueConstraint(err) {
			return &optimisticLockError{cause: err}
		}
		return eventstore.Connection(err)
	}
	return nil
}

// Remove implements invertedindex.Store.
func (s *Store) Remove(ctx context.Context, aggregateID, keyword string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inverted_index WHERE keyword = ? AND aggregate_id = ?`, keyword, aggregateID)
	if err != nil {
		return eventstore.Connection(err)
	}
	return nil
}

// AggregateIDs implements invertedindex.Store.
func (s *Store) AggregateIDs(ctx context.Context, keyword string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT aggregate_id FROM inverted_index WHERE keyword = ?`, keyword)
	if err != nil {
		return nil, eventstore.Connection(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eventstore.Connection(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type optimisticLockError struct{ cause error }

func (e *optimisticLockError) Error() string { return fmt.Sprintf("sqlitestore: optimistic_lock: %v", e.cause) }
func (e *optimisticLockError) Unwrap() error { return e.cause }
func (e *optimisticLockError) Is(target error) bool {
	return target == error(eventstore.ErrOptimisticLock)
}

// isUniqueConstraint reports whether err came from violating a PRIMARY KEY
// or UNIQUE constraint, modernc.org/sqlite's surface for what dynamostore
// sees as a ConditionalCheckFailedException.
func isUniqueConstraint(err error) bool {
	return err != nil && sqliteErrContains(err, "UNIQUE constraint failed")
}

func sqliteErrContains(err error, substr string) bool {
	msg := err.Error()
	for i := 0; i+len(substr) <= len(msg); i++ {
		if msg[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
