package services

import (
	"context"
	"sort"

	"github.com/KossiPascal/atlas-kanban/internal/client/store"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// DefaultColumns seeds an empty board on first run.
var DefaultColumns = []models.Column{
	{Title: "To Do", Color: "#ff6b6b"},
	{Title: "In Progress", Color: "#5b8cff"},
	{Title: "Need Review", Color: "#ffb020"},
	{Title: "Done", Color: "#00c48c"},
}

// ColumnService exposes board column operations.
type ColumnService struct {
	sync  *syncer.Orchestrator
	store *store.Store
	log   logging.Logger
}

func NewColumnService(ctx context.Context, o *syncer.Orchestrator, s *store.Store, sub Subscriber, log logging.Logger) *ColumnService {
	svc := &ColumnService{sync: o, store: s, log: log.With("service", "columns")}
	resync(ctx, sub, o, models.TableColumns, log)
	return svc
}

// Create validates and commits a new column at the end of the board.
func (c *ColumnService) Create(ctx context.Context, col models.Column) (models.Record, error) {
	if err := col.Validate(); err != nil {
		return models.Record{}, err
	}
	existing, err := c.List(ctx)
	if err != nil {
		return models.Record{}, err
	}
	var rec models.Record
	if err := rec.EncodePayload(col); err != nil {
		return models.Record{}, err
	}
	rec.Position = len(existing)
	return c.sync.Save(ctx, models.TableColumns, rec)
}

// Seed creates the default columns when the board is empty.
func (c *ColumnService) Seed(ctx context.Context) error {
	existing, err := c.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	recs := make([]models.Record, len(DefaultColumns))
	for i, col := range DefaultColumns {
		if err := recs[i].EncodePayload(col); err != nil {
			return err
		}
		recs[i].Position = i
	}
	_, err = c.sync.BulkSave(ctx, models.TableColumns, recs)
	return err
}

// List returns the board's columns in display order. Columns are shared
// board structure, visible to everyone.
func (c *ColumnService) List(ctx context.Context) ([]models.Record, error) {
	recs, err := c.store.List(ctx, models.TableColumns)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out, nil
}

// Get returns one column.
func (c *ColumnService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := c.store.Get(ctx, models.TableColumns, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

// Update commits a column edit after the permission check.
func (c *ColumnService) Update(ctx context.Context, rec models.Record) (models.Record, error) {
	if rec.ID == "" {
		return rec, common.ErrMissingID
	}
	current, err := c.store.Get(ctx, models.TableColumns, rec.ID)
	if err != nil {
		return rec, err
	}
	if !canMutate(c.sync.Principal(), *current) {
		return rec, common.ErrPermissionDenied
	}
	rec.Owner = current.Owner
	rec.CreatedAt = current.CreatedAt
	return c.sync.Update(ctx, models.TableColumns, rec)
}

// Delete tombstones a column and every task still in it. Reports false on
// any failure.
func (c *ColumnService) Delete(ctx context.Context, id string) bool {
	current, err := c.store.Get(ctx, models.TableColumns, id)
	if err != nil {
		c.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return false
	}
	if !canMutate(c.sync.Principal(), *current) {
		c.log.Warn(ctx, "delete denied", "id", id)
		return false
	}

	tasks, err := c.store.GetByField(ctx, models.TableTasks, models.FieldColumnID, id)
	if err != nil {
		c.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return false
	}
	if len(tasks) > 0 {
		ids := make([]string, len(tasks))
		for i, r := range tasks {
			ids[i] = r.ID
		}
		if err := c.sync.BulkDelete(ctx, models.TableTasks, ids); err != nil {
			c.log.Warn(ctx, "delete failed", "id", id, "error", err)
			return false
		}
	}

	if err := c.sync.Delete(ctx, models.TableColumns, id); err != nil {
		c.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return false
	}
	return true
}
