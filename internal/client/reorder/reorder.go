// Package reorder computes dense position reindexes for drag-and-drop moves.
// Positions within a column are always the array indexes 0..n-1 of the
// column's ordered task list; a move splices the task into place and rewrites
// the positions that changed, nothing else.
package reorder

import (
	"context"
	"fmt"
	"sort"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// Patch is one record mutation produced by a move plan: the task's new
// column and position.
type Patch struct {
	ID       string
	ColumnID string
	Position int
}

// Plan is the full effect of one move: the patches to apply, nothing more.
// An empty plan means the move was a no-op.
type Plan struct {
	Patches []Patch
}

// Empty reports whether the move changes nothing.
func (p Plan) Empty() bool {
	return len(p.Patches) == 0
}

// SortByPosition orders records by position ascending, ties broken by id so
// the order is deterministic even when positions collide.
func SortByPosition(recs []models.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Position != recs[j].Position {
			return recs[i].Position < recs[j].Position
		}
		return recs[i].ID < recs[j].ID
	})
}

func ids(recs []models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func remove(list []string, id string) ([]string, bool) {
	for i, v := range list {
		if v == id {
			return append(append([]string(nil), list[:i]...), list[i+1:]...), true
		}
	}
	return list, false
}

func insertAt(list []string, id string, index int) []string {
	if index < 0 {
		index = 0
	}
	if index > len(list) {
		index = len(list)
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, id)
	return append(out, list[index:]...)
}

// Compute plans a move of taskID from its current slot in source to destIndex
// in dest. source and dest are the current records of the two columns; for a
// same-column move pass the same slice twice and equal column ids. destIndex
// out of range clamps to the nearest valid slot. The resulting patches cover
// exactly the records whose column or position changes.
func Compute(source, dest []models.Record, sourceColumn, destColumn, taskID string, destIndex int) (Plan, error) {
	src := append([]models.Record(nil), source...)
	SortByPosition(src)
	srcIDs := ids(src)

	srcIDs, found := remove(srcIDs, taskID)
	if !found {
		return Plan{}, fmt.Errorf("%w: task %s not in column %s", common.ErrNotFound, taskID, sourceColumn)
	}

	var dstIDs []string
	sameColumn := sourceColumn == destColumn
	if sameColumn {
		dstIDs = srcIDs
	} else {
		dst := append([]models.Record(nil), dest...)
		SortByPosition(dst)
		dstIDs = ids(dst)
	}
	dstIDs = insertAt(dstIDs, taskID, destIndex)

	// Index current placement so only real changes become patches.
	current := make(map[string]Patch, len(source)+len(dest))
	for _, r := range source {
		current[r.ID] = Patch{ID: r.ID, ColumnID: sourceColumn, Position: r.Position}
	}
	if !sameColumn {
		for _, r := range dest {
			current[r.ID] = Patch{ID: r.ID, ColumnID: destColumn, Position: r.Position}
		}
	}

	var plan Plan
	emit := func(id, column string, pos int) {
		want := Patch{ID: id, ColumnID: column, Position: pos}
		if current[id] != want {
			plan.Patches = append(plan.Patches, want)
		}
	}
	if !sameColumn {
		for i, id := range srcIDs {
			emit(id, sourceColumn, i)
		}
	}
	for i, id := range dstIDs {
		emit(id, destColumn, i)
	}
	return plan, nil
}

// TaskSource is the store surface the engine needs.
type TaskSource interface {
	GetByField(ctx context.Context, table models.Table, field string, value any) ([]models.Record, error)
	Get(ctx context.Context, table models.Table, id string) (*models.Record, error)
}

// LiveTasksInColumn returns the non-deleted, non-archived tasks of a column,
// the set a move plan operates over.
func LiveTasksInColumn(ctx context.Context, src TaskSource, columnID string) ([]models.Record, error) {
	recs, err := src.GetByField(ctx, models.TableTasks, models.FieldColumnID, columnID)
	if err != nil {
		return nil, err
	}
	live := recs[:0]
	for _, r := range recs {
		if r.Deleted {
			continue
		}
		if string(r.Field("archived")) == "true" {
			continue
		}
		live = append(live, r)
	}
	return live, nil
}

// PlanMove loads both columns' live tasks and computes the move plan for
// taskID into destColumn at destIndex.
func PlanMove(ctx context.Context, src TaskSource, taskID, destColumn string, destIndex int) (Plan, error) {
	task, err := src.Get(ctx, models.TableTasks, taskID)
	if err != nil {
		return Plan{}, err
	}
	sourceColumn := task.StringField(models.FieldColumnID)

	source, err := LiveTasksInColumn(ctx, src, sourceColumn)
	if err != nil {
		return Plan{}, err
	}

	var dest []models.Record
	if destColumn == sourceColumn {
		dest = source
	} else if dest, err = LiveTasksInColumn(ctx, src, destColumn); err != nil {
		return Plan{}, err
	}

	return Compute(source, dest, sourceColumn, destColumn, taskID, destIndex)
}
