package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KossiPascal/atlas-kanban/internal/filex"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Board prints the columns with their tasks in display order.
func (a *App) Board(ctx context.Context) error {
	cols, err := a.columns.List(ctx)
	if err != nil {
		fmt.Println("Failed to load board:", err)
		return err
	}

	for _, col := range cols {
		fmt.Printf("== %s (%s)\n", col.StringField("title"), shortID(col.ID))
		tasks, err := a.tasks.GetByField(ctx, models.FieldColumnID, col.ID)
		if err != nil {
			fmt.Println("  failed to load tasks:", err)
			continue
		}
		for _, task := range tasks {
			if string(task.Field("archived")) == "true" {
				continue
			}
			marker := " "
			if !task.Synced {
				marker = "*"
			}
			fmt.Printf("  %d.%s [%s] %s\n", task.Position, marker, shortID(task.ID), task.StringField("title"))
		}
	}
	return nil
}

// Add prompts for a title, description and column, then creates a task.
func (a *App) Add(ctx context.Context) error {
	title, err := getSimpleText(a.reader, "Task title:", os.Stdout)
	if err != nil {
		return err
	}
	description, err := GetMultiline(a.reader, "Description:", os.Stdout)
	if err != nil {
		return err
	}
	columnID, err := getSimpleText(a.reader, "Column id:", os.Stdout)
	if err != nil {
		return err
	}

	rec, err := a.tasks.Create(ctx, models.Task{Title: title, Description: description, ColumnID: columnID})
	if err != nil {
		fmt.Println("Failed to create task:", err)
		return err
	}
	fmt.Println("Created", shortID(rec.ID))
	return nil
}

// Show prints one task in full.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: show <task-id>")
		return nil
	}
	rec, err := a.tasks.Get(ctx, args[0])
	if err != nil {
		fmt.Println("Not found:", args[0])
		return err
	}

	var task models.Task
	if err := rec.DecodePayload(&task); err != nil {
		return err
	}

	fmt.Printf("%s\n  column: %s  position: %d  status: %s  synced: %t\n",
		task.Title, task.ColumnID, rec.Position, task.Status, rec.Synced)
	if task.Description != "" {
		fmt.Println("  " + strings.ReplaceAll(task.Description, "\n", "\n  "))
	}
	for _, item := range task.Checklist {
		mark := "[ ]"
		if item.Done != nil && item.Done.OK {
			mark = "[x]"
		}
		fmt.Printf("  %s %s (%s)\n", mark, item.Name, item.ID)
	}
	for _, c := range task.Comments {
		if c.Deleted {
			continue
		}
		fmt.Printf("  %s: %s\n", c.By, c.Msg)
	}
	for owner, group := range task.Attachments {
		for _, f := range group.Files {
			fmt.Printf("  file %s (%d bytes, by %s)\n", f.Name, f.Size, owner)
		}
	}
	return nil
}

// Move places a task at an index in a column.
func (a *App) Move(ctx context.Context, args []string) error {
	if len(args) < 3 {
		fmt.Println("Usage: move <task-id> <column-id> <index>")
		return nil
	}
	index, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Println("Index must be a number")
		return nil
	}
	if err := a.tasks.Move(ctx, args[0], args[1], index); err != nil {
		fmt.Println("Move failed:", err)
		return err
	}
	return nil
}

// Done marks a task completed.
func (a *App) Done(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: done <task-id>")
		return nil
	}
	if !a.tasks.Complete(ctx, args[0]) {
		fmt.Println("Failed to complete", args[0])
	}
	return nil
}

// Archive hides a task from the board.
func (a *App) Archive(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: archive <task-id>")
		return nil
	}
	if !a.tasks.Archive(ctx, args[0]) {
		fmt.Println("Failed to archive", args[0])
	}
	return nil
}

// Share grants task visibility to other users.
func (a *App) Share(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: share <task-id> <user-id>...")
		return nil
	}
	if !a.tasks.Share(ctx, args[0], args[1:]) {
		fmt.Println("Failed to share", args[0])
	}
	return nil
}

// Comment appends a comment to a task.
func (a *App) Comment(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: comment <task-id>")
		return nil
	}
	msg, err := GetMultiline(a.reader, "Comment:", os.Stdout)
	if err != nil {
		return err
	}
	if _, ok := a.tasks.AddComment(ctx, args[0], msg); !ok {
		fmt.Println("Failed to comment on", args[0])
	}
	return nil
}

// Attach uploads a local file as a task attachment.
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: attach <task-id> <file-path>")
		return nil
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Println("Cannot read file:", err)
		return err
	}
	if err := a.tasks.AddAttachment(ctx, args[0], filepath.Base(args[1]), data); err != nil {
		fmt.Println("Attach failed:", err)
		return err
	}
	fmt.Println("Attached", filepath.Base(args[1]))
	return nil
}

// Fetch downloads a task attachment into the local downloads directory.
func (a *App) Fetch(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: fetch <task-id> <file-name>")
		return nil
	}
	rec, err := a.tasks.Get(ctx, args[0])
	if err != nil {
		fmt.Println("Task not found:", args[0])
		return err
	}
	var task models.Task
	if err := rec.DecodePayload(&task); err != nil {
		return err
	}
	var ref *models.FileRef
	for _, group := range task.Attachments {
		for i := range group.Files {
			if group.Files[i].Name == args[1] {
				ref = &group.Files[i]
			}
		}
	}
	if ref == nil {
		fmt.Println("No attachment named", args[1])
		return nil
	}
	data, err := a.tasks.DownloadAttachment(ctx, ref.Key)
	if err != nil {
		fmt.Println("Download failed:", err)
		return err
	}
	dir, err := filex.EnsureSubDir("downloads")
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, ref.Name)
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return err
	}
	fmt.Println("Saved", dest)
	return nil
}

// Search lists visible tasks matching a keyword.
func (a *App) Search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: search <keyword>")
		return nil
	}
	recs, err := a.tasks.Search(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Println("Search failed:", err)
		return err
	}
	for _, r := range recs {
		fmt.Printf("  [%s] %s\n", shortID(r.ID), r.StringField("title"))
	}
	return nil
}

// Sync runs a full reconcile round on demand.
func (a *App) Sync(ctx context.Context) error {
	if err := a.sync.SyncAll(ctx); err != nil {
		fmt.Println("Sync incomplete:", err)
		return err
	}
	fmt.Println("In sync")
	return nil
}
