package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func taskRecord(title, columnID string) models.Record {
	return models.Record{
		Owner: "user1",
		Payload: map[string]json.RawMessage{
			"title":    json.RawMessage(`"` + title + `"`),
			"columnId": json.RawMessage(`"` + columnID + `"`),
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, models.TableTasks, taskRecord("write report", "todo"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.NotZero(t, saved.CreatedAt)
	assert.NotZero(t, saved.UpdatedAt)
	assert.False(t, saved.Synced)

	got, err := s.Get(ctx, models.TableTasks, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "user1", got.Owner)
	assert.Equal(t, "write report", got.StringField("title"))
	assert.Equal(t, "todo", got.StringField("columnId"))
}

func TestStore_SaveKeepsProvidedID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := taskRecord("x", "todo")
	r.ID = "fixed-id"
	saved, err := s.Save(ctx, models.TableTasks, r)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", saved.ID)
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), models.TableTasks, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_UpdateRequiresID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Update(context.Background(), models.TableTasks, taskRecord("x", "todo"))
	assert.ErrorIs(t, err, common.ErrMissingID)
}

func TestStore_UpdateOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, models.TableTasks, taskRecord("before", "todo"))
	require.NoError(t, err)

	saved.SetField("title", "after")
	_, err = s.Update(ctx, models.TableTasks, saved)
	require.NoError(t, err)

	got, err := s.Get(ctx, models.TableTasks, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.StringField("title"))
}

func TestStore_BulkSaveAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recs := []models.Record{
		taskRecord("a", "todo"),
		taskRecord("b", "todo"),
		taskRecord("c", "done"),
	}
	saved, err := s.BulkSave(ctx, models.TableTasks, recs)
	require.NoError(t, err)
	require.Len(t, saved, 3)

	all, err := s.List(ctx, models.TableTasks)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_GetByField(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, models.TableTasks, taskRecord("a", "todo"))
	require.NoError(t, err)
	_, err = s.Save(ctx, models.TableTasks, taskRecord("b", "todo"))
	require.NoError(t, err)
	_, err = s.Save(ctx, models.TableTasks, taskRecord("c", "done"))
	require.NoError(t, err)

	todo, err := s.GetByField(ctx, models.TableTasks, "columnId", "todo")
	require.NoError(t, err)
	assert.Len(t, todo, 2)

	byOwner, err := s.GetByField(ctx, models.TableTasks, models.FieldOwner, "user1")
	require.NoError(t, err)
	assert.Len(t, byOwner, 3)
}

func TestStore_GetByFieldBool(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := taskRecord("archived one", "todo")
	r.Payload["archived"] = json.RawMessage(`true`)
	_, err := s.Save(ctx, models.TableTasks, r)
	require.NoError(t, err)
	_, err = s.Save(ctx, models.TableTasks, taskRecord("live one", "todo"))
	require.NoError(t, err)

	archived, err := s.GetByField(ctx, models.TableTasks, "archived", true)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "archived one", archived[0].StringField("title"))
}

func TestStore_GetByFieldRejectsBadName(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetByField(context.Background(), models.TableTasks, "title; DROP TABLE tasks", "x")
	assert.Error(t, err)
}

func TestStore_BulkGetByFieldValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Save(ctx, models.TableTasks, taskRecord("a", "todo"))
	require.NoError(t, err)
	b, err := s.Save(ctx, models.TableTasks, taskRecord("b", "todo"))
	require.NoError(t, err)
	_, err = s.Save(ctx, models.TableTasks, taskRecord("c", "done"))
	require.NoError(t, err)

	got, err := s.BulkGetByFieldValues(ctx, models.TableTasks, models.FieldID, []any{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := s.BulkGetByFieldValues(ctx, models.TableTasks, models.FieldID, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, models.TableTasks, taskRecord("a", "todo"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, models.TableTasks, saved.ID))

	_, err = s.Get(ctx, models.TableTasks, saved.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_BulkDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Save(ctx, models.TableTasks, taskRecord("a", "todo"))
	require.NoError(t, err)
	b, err := s.Save(ctx, models.TableTasks, taskRecord("b", "todo"))
	require.NoError(t, err)

	require.NoError(t, s.BulkDelete(ctx, models.TableTasks, []string{a.ID, b.ID}))

	all, err := s.List(ctx, models.TableTasks)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_UnsyncedLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	local, err := s.Save(ctx, models.TableTasks, taskRecord("local edit", "todo"))
	require.NoError(t, err)

	remote := taskRecord("from server", "done")
	remote.ID = "remote-1"
	remote.Synced = true
	_, err = s.Save(ctx, models.TableTasks, remote)
	require.NoError(t, err)

	unsynced, err := s.GetUnsynced(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, local.ID, unsynced[0].ID)

	require.NoError(t, s.MarkSynced(ctx, models.TableTasks, local.ID))

	unsynced, err = s.GetUnsynced(ctx, models.TableTasks)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	got, err := s.Get(ctx, models.TableTasks, local.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.GreaterOrEqual(t, got.UpdatedAt, local.UpdatedAt)
}

func TestStore_LazyTableCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := models.Record{Payload: map[string]json.RawMessage{"name": json.RawMessage(`"sticky"`)}}
	saved, err := s.Save(ctx, models.Table("labels"), r)
	require.NoError(t, err)

	got, err := s.Get(ctx, models.Table("labels"), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "sticky", got.StringField("name"))
}

func TestStore_RejectsBadTableName(t *testing.T) {
	s := openTestStore(t)

	_, err := s.List(context.Background(), models.Table("tasks; DROP TABLE tasks"))
	assert.ErrorIs(t, err, common.ErrUnknownTable)
}
