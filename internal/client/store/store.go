// Package store implements the client's local persistent mirror of
// server-owned entities. One sqlite table per logical table; metadata fields
// live in real columns so they stay queryable, everything else is a JSON
// payload queried with json_extract.
//
// The store is the only shared mutable resource on the client. database/sql
// serializes actual storage operations, so no locking beyond the lazy-table
// bookkeeping is needed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/KossiPascal/atlas-kanban/internal/client/store/migrations"
	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/dbx"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// identRe limits table and field names to what the original accepted:
// alphanumerics and underscore. Anything else is rejected before it reaches
// SQL text.
var identRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const tableColumns = `id, owner, created_at, updated_at, synced, deleted, position, payload`

// Store is the keyed, per-table persistent cache. Tables beyond the three
// standard ones are created lazily on first write.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]struct{}
}

// Open opens (creating if needed) the sqlite mirror at dsn and runs the
// embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("failed to run local migrations: %w", err)
	}

	s := &Store{db: db, ensured: make(map[string]struct{})}
	for _, t := range models.Tables {
		s.ensured[string(t)] = struct{}{}
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureTable creates the table on first write if it does not exist yet.
// Table creation is lazy and schema-less beyond requiring an id.
func (s *Store) ensureTable(ctx context.Context, table models.Table) error {
	name := string(table)
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", common.ErrUnknownTable, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ensured[name]; ok {
		return nil
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		owner      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		synced     INTEGER NOT NULL DEFAULT 0,
		deleted    INTEGER NOT NULL DEFAULT 0,
		position   INTEGER NOT NULL DEFAULT 0,
		payload    TEXT NOT NULL DEFAULT '{}'
	)`, name)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	s.ensured[name] = struct{}{}
	return nil
}

func upsertQuery(table models.Table) string {
	return fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced = excluded.synced,
			deleted = excluded.deleted,
			position = excluded.position,
			payload = excluded.payload`, table, tableColumns)
}

func execUpsert(ctx context.Context, db dbx.DBTX, table models.Table, r models.Record) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if r.Payload == nil {
		payload = []byte("{}")
	}
	_, err = db.ExecContext(ctx, upsertQuery(table),
		r.ID, r.Owner, r.CreatedAt, r.UpdatedAt, boolToInt(r.Synced), boolToInt(r.Deleted), r.Position, string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// prepare stamps a record for writing: id assigned when missing, createdAt
// defaulted, updatedAt rewritten. Synced stays whatever the caller set;
// persisting a pulled remote record is the one case where it arrives true.
func prepare(r models.Record) models.Record {
	now := models.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return r
}

// Save upserts a single record, stamping updatedAt and assigning an id when
// absent. Returns the stored record.
func (s *Store) Save(ctx context.Context, table models.Table, r models.Record) (models.Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return r, err
	}
	r = prepare(r)
	if err := execUpsert(ctx, s.db, table, r); err != nil {
		return r, err
	}
	return r, nil
}

// BulkSave upserts records as one atomic per-table batch.
func (s *Store) BulkSave(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	if len(recs) == 0 {
		return recs, nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	out := make([]models.Record, len(recs))
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i, r := range recs {
			out[i] = prepare(r)
			if err := execUpsert(ctx, tx, table, out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put upserts a record exactly as given, without stamping timestamps or
// assigning an id. Pull passes use it so remote records keep the remote
// clock.
func (s *Store) Put(ctx context.Context, table models.Table, r models.Record) error {
	if r.ID == "" {
		return common.ErrMissingID
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	return execUpsert(ctx, s.db, table, r)
}

// BulkPut upserts records verbatim as one atomic batch.
func (s *Store) BulkPut(ctx context.Context, table models.Table, recs []models.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, r := range recs {
			if r.ID == "" {
				return common.ErrMissingID
			}
			if err := execUpsert(ctx, tx, table, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update upserts an existing record; the id must already be set.
func (s *Store) Update(ctx context.Context, table models.Table, r models.Record) (models.Record, error) {
	if r.ID == "" {
		return r, common.ErrMissingID
	}
	return s.Save(ctx, table, r)
}

// BulkUpdate upserts existing records as one atomic batch.
func (s *Store) BulkUpdate(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	for _, r := range recs {
		if r.ID == "" {
			return nil, common.ErrMissingID
		}
	}
	return s.BulkSave(ctx, table, recs)
}

func scanRecord(rows interface{ Scan(...any) error }) (models.Record, error) {
	var r models.Record
	var synced, deleted int
	var payload string
	if err := rows.Scan(&r.ID, &r.Owner, &r.CreatedAt, &r.UpdatedAt, &synced, &deleted, &r.Position, &payload); err != nil {
		return r, err
	}
	r.Synced = synced != 0
	r.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return r, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return r, nil
}

// Get returns the record with the given id, or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, tableColumns, table)
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns every record of a table.
func (s *Store) List(ctx context.Context, table models.Table) ([]models.Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, fmt.Sprintf(`SELECT %s FROM %s`, tableColumns, table))
}

// fieldPredicate maps a record field name to a SQL expression. Metadata
// fields hit real columns; anything else goes through json_extract on the
// payload.
func fieldPredicate(field string) (string, error) {
	if !identRe.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	switch field {
	case models.FieldID:
		return "id", nil
	case models.FieldOwner:
		return "owner", nil
	case models.FieldCreatedAt:
		return "created_at", nil
	case models.FieldUpdatedAt:
		return "updated_at", nil
	case models.FieldSynced:
		return "synced", nil
	case models.FieldDeleted:
		return "deleted", nil
	case models.FieldPosition:
		return "position", nil
	}
	return fmt.Sprintf("json_extract(payload, '$.%s')", field), nil
}

// bindValue converts a Go comparison value into its sqlite representation.
// Booleans compare as 0/1 both for metadata columns and for json_extract
// results.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		return boolToInt(b)
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetByField returns records whose field equals value.
func (s *Store) GetByField(ctx context.Context, table models.Table, field string, value any) ([]models.Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	pred, err := fieldPredicate(field)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, tableColumns, table, pred)
	return s.queryRecords(ctx, query, bindValue(value))
}

// BulkGetByFieldValues returns records whose field equals any of the values.
func (s *Store) BulkGetByFieldValues(ctx context.Context, table models.Table, field string, values []any) ([]models.Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	pred, err := fieldPredicate(field)
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`, tableColumns, table, pred, placeholders)
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = bindValue(v)
	}
	return s.queryRecords(ctx, query, args...)
}

// Delete physically removes a record. Tombstone propagation is the sync
// orchestrator's job; by the time Delete is called the deletion has already
// round-tripped (or the record never left this client).
func (s *Store) Delete(ctx context.Context, table models.Table, id string) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// BulkDelete physically removes records as one atomic batch.
func (s *Store) BulkDelete(ctx context.Context, table models.Table, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("failed to delete record %s: %w", id, err)
			}
		}
		return nil
	})
}

// GetUnsynced returns the records carrying local mutations not yet
// acknowledged by the authoritative store. It reflects the state of the
// store at call time; the synced flag is the only queue there is.
func (s *Store) GetUnsynced(ctx context.Context, table models.Table) ([]models.Record, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE synced = 0`, tableColumns, table)
	return s.queryRecords(ctx, query)
}

// MarkSynced flips a record to synced after a successful push. Only the sync
// orchestrator calls this.
func (s *Store) MarkSynced(ctx context.Context, table models.Table, id string) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET synced = 1, updated_at = ? WHERE id = ?`, table)
	if _, err := s.db.ExecContext(ctx, query, models.Now(), id); err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return nil
}
