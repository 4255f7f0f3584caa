package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/KossiPascal/atlas-kanban/internal/client/reorder"
	"github.com/KossiPascal/atlas-kanban/internal/client/store"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
	"github.com/KossiPascal/atlas-kanban/internal/netx"
)

// StatusCompleted is the status value Complete writes.
const StatusCompleted = "completed"

// Presigner hands out short-lived object-storage URLs for attachment files.
// Implemented by gateway.Gateway.
type Presigner interface {
	PresignedUploadURL(ctx context.Context, key string) (string, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// TaskService exposes task operations to the UI.
type TaskService struct {
	sync    *syncer.Orchestrator
	store   *store.Store
	presign Presigner
	log     logging.Logger
}

// NewTaskService wires the service and registers the realtime resync
// subscription, so a peer's mutation triggers a local reconcile.
func NewTaskService(ctx context.Context, o *syncer.Orchestrator, s *store.Store, sub Subscriber, presign Presigner, log logging.Logger) *TaskService {
	svc := &TaskService{sync: o, store: s, presign: presign, log: log.With("service", "tasks")}
	resync(ctx, sub, o, models.TableTasks, log)
	return svc
}

// Create validates and commits a new task.
func (t *TaskService) Create(ctx context.Context, task models.Task) (models.Record, error) {
	if err := task.Validate(); err != nil {
		return models.Record{}, err
	}
	var rec models.Record
	if err := rec.EncodePayload(task); err != nil {
		return models.Record{}, err
	}
	return t.sync.Save(ctx, models.TableTasks, rec)
}

// Get returns a task the caller may see, or common.ErrNotFound. Invisible
// records read as absent, never as forbidden.
func (t *TaskService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := t.store.Get(ctx, models.TableTasks, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted || !visibleToPrincipal(t.sync.Principal(), *rec) {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

// visible filters, drops tombstones and sorts by position.
func (t *TaskService) visible(recs []models.Record) []models.Record {
	p := t.sync.Principal()
	out := recs[:0]
	for _, r := range recs {
		if r.Deleted || !visibleToPrincipal(p, r) {
			continue
		}
		out = append(out, r)
	}
	reorder.SortByPosition(out)
	return out
}

// List returns the caller's visible tasks, position sorted.
func (t *TaskService) List(ctx context.Context) ([]models.Record, error) {
	recs, err := t.store.List(ctx, models.TableTasks)
	if err != nil {
		return nil, err
	}
	return t.visible(recs), nil
}

// GetByField returns the caller's visible tasks matching a field value.
func (t *TaskService) GetByField(ctx context.Context, field string, value any) ([]models.Record, error) {
	recs, err := t.store.GetByField(ctx, models.TableTasks, field, value)
	if err != nil {
		return nil, err
	}
	return t.visible(recs), nil
}

// Update commits an edit after the permission check.
func (t *TaskService) Update(ctx context.Context, rec models.Record) (models.Record, error) {
	if rec.ID == "" {
		return rec, common.ErrMissingID
	}
	current, err := t.store.Get(ctx, models.TableTasks, rec.ID)
	if err != nil {
		return rec, err
	}
	if !canMutate(t.sync.Principal(), *current) {
		return rec, common.ErrPermissionDenied
	}
	rec.Owner = current.Owner
	rec.CreatedAt = current.CreatedAt
	return t.sync.Update(ctx, models.TableTasks, rec)
}

// Delete tombstones a task after the permission check. Reports false on any
// failure.
func (t *TaskService) Delete(ctx context.Context, id string) bool {
	current, err := t.store.Get(ctx, models.TableTasks, id)
	if err != nil {
		t.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return false
	}
	if !canMutate(t.sync.Principal(), *current) {
		t.log.Warn(ctx, "delete denied", "id", id)
		return false
	}
	if err := t.sync.Delete(ctx, models.TableTasks, id); err != nil {
		t.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return false
	}
	return true
}

// Move places a task at destIndex in destColumn, reindexing both affected
// columns densely and committing only the records that changed.
func (t *TaskService) Move(ctx context.Context, taskID, destColumn string, destIndex int) error {
	task, err := t.Get(ctx, taskID)
	if err != nil {
		return err
	}

	plan, err := reorder.PlanMove(ctx, t.store, taskID, destColumn, destIndex)
	if err != nil {
		return err
	}
	if plan.Empty() {
		return nil
	}

	p := t.sync.Principal()
	now := models.Now()
	recs := make([]models.Record, 0, len(plan.Patches))
	for _, patch := range plan.Patches {
		rec, err := t.store.Get(ctx, models.TableTasks, patch.ID)
		if err != nil {
			return err
		}
		rec.Position = patch.Position
		if err := rec.SetField(models.FieldColumnID, patch.ColumnID); err != nil {
			return err
		}
		if patch.ID == taskID {
			if err := rec.SetField("movedBy", p.UserID); err != nil {
				return err
			}
			if err := rec.SetField("movedAt", now); err != nil {
				return err
			}
		}
		recs = append(recs, *rec)
	}

	if _, err := t.sync.BulkUpdate(ctx, models.TableTasks, recs); err != nil {
		return fmt.Errorf("failed to commit move: %w", err)
	}
	t.log.Info(ctx, "task moved", "id", task.ID, "column", destColumn, "index", destIndex)
	return nil
}

// mutate loads a visible task, applies fn to its payload and commits. The
// shared shape of completed/archive/share and friends.
func (t *TaskService) mutate(ctx context.Context, id, op string, fn func(task *models.Task)) bool {
	rec, err := t.Get(ctx, id)
	if err != nil {
		t.log.Warn(ctx, op+" failed", "id", id, "error", err)
		return false
	}

	var task models.Task
	if err := rec.DecodePayload(&task); err != nil {
		t.log.Warn(ctx, op+" failed", "id", id, "error", err)
		return false
	}
	fn(&task)
	if err := rec.EncodePayload(task); err != nil {
		t.log.Warn(ctx, op+" failed", "id", id, "error", err)
		return false
	}

	if _, err := t.Update(ctx, *rec); err != nil {
		t.log.Warn(ctx, op+" failed", "id", id, "error", err)
		return false
	}
	return true
}

// Complete marks a task completed.
func (t *TaskService) Complete(ctx context.Context, id string) bool {
	return t.mutate(ctx, id, "complete", func(task *models.Task) {
		task.Status = StatusCompleted
	})
}

// Archive hides a task from board listings without deleting it.
func (t *TaskService) Archive(ctx context.Context, id string) bool {
	return t.mutate(ctx, id, "archive", func(task *models.Task) {
		task.Archived = true
	})
}

// Restore brings an archived task back.
func (t *TaskService) Restore(ctx context.Context, id string) bool {
	return t.mutate(ctx, id, "restore", func(task *models.Task) {
		task.Archived = false
	})
}

// Share grants visibility to the given users.
func (t *TaskService) Share(ctx context.Context, id string, userIDs []string) bool {
	now := models.Now()
	return t.mutate(ctx, id, "share", func(task *models.Task) {
		if task.SharedWith == nil {
			task.SharedWith = make(map[string]models.Stamp, len(userIDs))
		}
		for _, uid := range userIDs {
			task.SharedWith[uid] = models.Stamp{At: now}
		}
	})
}

// Unshare revokes visibility from the given users.
func (t *TaskService) Unshare(ctx context.Context, id string, userIDs []string) bool {
	return t.mutate(ctx, id, "unshare", func(task *models.Task) {
		for _, uid := range userIDs {
			delete(task.SharedWith, uid)
		}
	})
}

// Assign attaches assignees to a task.
func (t *TaskService) Assign(ctx context.Context, id string, userIDs []string) bool {
	now := models.Now()
	return t.mutate(ctx, id, "assign", func(task *models.Task) {
		if task.AssignTo == nil {
			task.AssignTo = make(map[string]models.Stamp, len(userIDs))
		}
		for _, uid := range userIDs {
			task.AssignTo[uid] = models.Stamp{At: now}
		}
	})
}

// AddComment appends a comment and returns its id.
func (t *TaskService) AddComment(ctx context.Context, taskID, msg string) (string, bool) {
	id := uuid.NewString()
	p := t.sync.Principal()
	ok := t.mutate(ctx, taskID, "comment", func(task *models.Task) {
		task.Comments = append(task.Comments, models.Comment{
			ID:  id,
			By:  p.UserID,
			At:  models.Now(),
			Msg: msg,
		})
	})
	if !ok {
		return "", false
	}
	return id, true
}

// EditComment rewrites a comment's message. Only the author (or an admin)
// may edit.
func (t *TaskService) EditComment(ctx context.Context, taskID, commentID, msg string) bool {
	p := t.sync.Principal()
	found := false
	ok := t.mutate(ctx, taskID, "edit comment", func(task *models.Task) {
		for i := range task.Comments {
			c := &task.Comments[i]
			if c.ID != commentID || c.Deleted {
				continue
			}
			if c.By != p.UserID && !p.Admin {
				return
			}
			c.Msg = msg
			c.UpdatedBy = p.UserID
			c.UpdatedAt = models.Now()
			found = true
			return
		}
	})
	return ok && found
}

// DeleteComment soft-deletes a comment, keeping the thread's shape.
func (t *TaskService) DeleteComment(ctx context.Context, taskID, commentID string) bool {
	p := t.sync.Principal()
	found := false
	ok := t.mutate(ctx, taskID, "delete comment", func(task *models.Task) {
		for i := range task.Comments {
			c := &task.Comments[i]
			if c.ID != commentID {
				continue
			}
			if c.By != p.UserID && !p.Admin {
				return
			}
			c.Deleted = true
			found = true
			return
		}
	})
	return ok && found
}

// ToggleCheckItem flips one checklist item's done state.
func (t *TaskService) ToggleCheckItem(ctx context.Context, taskID, itemID string) bool {
	p := t.sync.Principal()
	found := false
	ok := t.mutate(ctx, taskID, "toggle checklist", func(task *models.Task) {
		for i := range task.Checklist {
			item := &task.Checklist[i]
			if item.ID != itemID {
				continue
			}
			done := item.Done == nil || !item.Done.OK
			item.Done = &models.Mark{OK: done, By: p.UserID, At: models.Now()}
			found = true
			return
		}
	})
	return ok && found
}

// AddAttachment uploads a file through a presigned URL and records it on the
// task under the caller's attachment group.
func (t *TaskService) AddAttachment(ctx context.Context, taskID, fileName string, data []byte) error {
	if _, err := t.Get(ctx, taskID); err != nil {
		return err
	}

	p := t.sync.Principal()
	key := fmt.Sprintf("%s/%s/%s", taskID, uuid.NewString(), fileName)
	uploadURL, err := t.presign.PresignedUploadURL(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to presign upload: %w", err)
	}
	if err := netx.UploadToPresignedURL(uploadURL, data); err != nil {
		return fmt.Errorf("failed to upload attachment: %w", err)
	}

	ref := models.FileRef{ID: uuid.NewString(), Name: fileName, Key: key, Size: int64(len(data))}
	ok := t.mutate(ctx, taskID, "attach", func(task *models.Task) {
		if task.Attachments == nil {
			task.Attachments = make(map[string]models.Attachment)
		}
		group := task.Attachments[p.UserID]
		group.At = models.Now()
		group.Files = append(group.Files, ref)
		task.Attachments[p.UserID] = group
	})
	if !ok {
		return fmt.Errorf("failed to record attachment on task %s", taskID)
	}
	return nil
}

// DownloadAttachment fetches an attachment's bytes through a presigned GET.
func (t *TaskService) DownloadAttachment(ctx context.Context, key string) ([]byte, error) {
	url, err := t.presign.PresignedDownloadURL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	return netx.DownloadFromPresignedURL(url)
}

// Recent returns the caller's most recently updated tasks, newest first.
func (t *TaskService) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	recs, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].UpdatedAt > recs[j].UpdatedAt
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// FilterByStatus returns visible tasks with the given status.
func (t *TaskService) FilterByStatus(ctx context.Context, status string) ([]models.Record, error) {
	recs, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.StringField("status") == status {
			out = append(out, r)
		}
	}
	return out, nil
}

// Search returns visible tasks whose title contains the keyword, case
// insensitively.
func (t *TaskService) Search(ctx context.Context, keyword string) ([]models.Record, error) {
	recs, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(keyword)
	out := recs[:0]
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.StringField("title")), needle) {
			out = append(out, r)
		}
	}
	return out, nil
}
