// Package documents implements the server's document store: one postgres
// table holding every logical collection, keyed by (table_name, id), with the
// table-specific fields in a jsonb payload column.
package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/dbx"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// identRe restricts table and field names reaching SQL text. Everything else
// is bound as a parameter.
var identRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const selectColumns = `id, owner, created_at, updated_at, deleted, position, payload`

// PostgresRepository stores records in the documents table. Bulk writes run
// inside a single transaction.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs a repository bound to the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func checkTable(table string) error {
	if !identRe.MatchString(table) {
		return common.ErrUnknownTable
	}
	return nil
}

// visibilityClause returns the WHERE fragment limiting rows to what principal
// may see: own records plus records whose assignTo or sharedWith payload maps
// carry the principal's id. Admins see everything.
func visibilityClause(includeAll bool, arg int) string {
	if includeAll {
		return "TRUE"
	}
	return fmt.Sprintf("(owner = $%d OR payload->'assignTo' ? $%d OR payload->'sharedWith' ? $%d)", arg, arg, arg)
}

func scanRecord(rows interface{ Scan(...any) error }) (models.Record, error) {
	var (
		rec     models.Record
		payload []byte
	)
	if err := rows.Scan(&rec.ID, &rec.Owner, &rec.CreatedAt, &rec.UpdatedAt, &rec.Deleted, &rec.Position, &payload); err != nil {
		return models.Record{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return models.Record{}, fmt.Errorf("payload decode error: %w", err)
		}
	}
	// Rows in the authoritative store are synced by definition.
	rec.Synced = true
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]models.Record, error) {
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns all live records of table visible to principal. With
// includeAll (admin), visibility filtering is skipped.
func (r *PostgresRepository) List(ctx context.Context, table string, principal string, includeAll bool) ([]models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	args := []any{table}
	vis := visibilityClause(includeAll, 2)
	if !includeAll {
		args = append(args, principal)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE table_name = $1 AND deleted = false AND %s
		ORDER BY position, id
	`, selectColumns, vis)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectRecords(rows)
}

// Get returns a single record by id, tombstones included. Visibility is the
// caller's concern.
func (r *PostgresRepository) Get(ctx context.Context, table string, id string) (*models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE table_name = $1 AND id = $2
	`, selectColumns)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, table, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rec, nil
}

// fieldExpr renders the SQL expression for a metadata column or, for anything
// else, the text projection of a payload field.
func fieldExpr(field string) (string, error) {
	if !identRe.MatchString(field) {
		return "", fmt.Errorf("%w: bad field %q", common.ErrUnknownTable, field)
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
	case models.FieldDeleted:
		return "deleted", nil
	case models.FieldPosition:
		return "position", nil
	default:
		return fmt.Sprintf("payload->>'%s'", field), nil
	}
}

// bindValue converts a raw JSON value into the text postgres compares a
// payload projection against. Strings lose their quotes; other JSON values
// keep their literal form, matching the ->> operator's text output.
func bindValue(raw json.RawMessage) any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return string(raw)
}

// GetByField returns visible live records of table whose field equals value.
func (r *PostgresRepository) GetByField(ctx context.Context, table string, field string, value json.RawMessage, principal string, includeAll bool) ([]models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	pred := expr + " = $2"

	args := []any{table, bindValue(value)}
	vis := "TRUE"
	if !includeAll {
		vis = visibilityClause(false, 3)
		args = append(args, principal)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE table_name = $1 AND deleted = false AND %s AND %s
		ORDER BY position, id
	`, selectColumns, pred, vis)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectRecords(rows)
}

// BulkGetByFieldValues returns visible live records whose field matches any of
// the given values.
func (r *PostgresRepository) BulkGetByFieldValues(ctx context.Context, table string, field string, values []json.RawMessage, principal string, includeAll bool) ([]models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	if len(values) > common.MaxBatchSize {
		return nil, common.ErrBatchTooLarge
	}
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}

	args := []any{table}
	placeholders := ""
	for i, v := range values {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", len(args)+1)
		args = append(args, bindValue(v))
	}
	pred := expr + " IN (" + placeholders + ")"

	vis := "TRUE"
	if !includeAll {
		vis = visibilityClause(false, len(args)+1)
		args = append(args, principal)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE table_name = $1 AND deleted = false AND %s AND %s
		ORDER BY position, id
	`, selectColumns, pred, vis)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectRecords(rows)
}

func upsertRecord(ctx context.Context, db dbx.DBTX, table string, rec models.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("payload encode error: %w", err)
	}
	if rec.Payload == nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO documents (table_name, id, owner, created_at, updated_at, deleted, position, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (table_name, id)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted = EXCLUDED.deleted,
			position = EXCLUDED.position,
			payload = EXCLUDED.payload
	`
	if _, err := db.ExecContext(ctx, query,
		table, rec.ID, rec.Owner, rec.CreatedAt, rec.UpdatedAt, rec.Deleted, rec.Position, payload); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Upsert writes a record, inserting or replacing by (table, id). The original
// created_at survives replacement.
func (r *PostgresRepository) Upsert(ctx context.Context, table string, rec models.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if rec.ID == "" {
		return common.ErrMissingID
	}
	return upsertRecord(ctx, r.db, table, rec)
}

// BulkUpsert writes a batch of records atomically. Batches above
// common.MaxBatchSize are rejected before any write.
func (r *PostgresRepository) BulkUpsert(ctx context.Context, table string, recs []models.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(recs) == 0 {
		return common.ErrEmptyBatch
	}
	if len(recs) > common.MaxBatchSize {
		return common.ErrBatchTooLarge
	}
	for _, rec := range recs {
		if rec.ID == "" {
			return common.ErrMissingID
		}
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, rec := range recs {
			if err := upsertRecord(ctx, tx, table, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a record physically. Deleting an absent id is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, table string, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	query := `DELETE FROM documents WHERE table_name = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, table, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// BulkDelete removes a batch of records atomically.
func (r *PostgresRepository) BulkDelete(ctx context.Context, table string, ids []string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(ids) == 0 {
		return common.ErrEmptyBatch
	}
	if len(ids) > common.MaxBatchSize {
		return common.ErrBatchTooLarge
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE table_name = $1 AND id = $2`, table, id); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// Visible reports whether principal may read rec: admins always, owners
// always, and anyone named in the assignTo or sharedWith payload maps.
func Visible(rec *models.Record, principal string, admin bool) bool {
	if admin || rec.Owner == principal {
		return true
	}
	for _, field := range []string{"assignTo", "sharedWith"} {
		raw := rec.Field(field)
		if raw == nil {
			continue
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if _, ok := m[principal]; ok {
			return true
		}
	}
	return false
}
