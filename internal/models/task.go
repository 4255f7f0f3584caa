package models

import (
	"errors"
	"strings"
)

// Stamp records when a principal was attached to something (assignment,
// share, view).
type Stamp struct {
	At int64 `json:"at"`
}

// Mark records who performed an action and when; OK carries the completion
// state for checklist items.
type Mark struct {
	OK bool   `json:"ok,omitempty"`
	By string `json:"by,omitempty"`
	At int64  `json:"at"`
}

// Tag is a colored label on a task.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Bg    string `json:"bg,omitempty"`
	Color string `json:"color,omitempty"`
}

// Priority classifies task urgency.
type Priority struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// CheckItem is one checklist entry, stored inline on the task.
type CheckItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Done    *Mark  `json:"done,omitempty"`
	Created *Mark  `json:"created,omitempty"`
	Updated *Mark  `json:"updated,omitempty"`
}

// Comment is one comment entry, stored inline on the task.
type Comment struct {
	ID        string   `json:"id"`
	By        string   `json:"by"`
	At        int64    `json:"at"`
	Msg       string   `json:"msg"`
	Reactions []string `json:"reactions,omitempty"`
	Deleted   bool     `json:"deleted,omitempty"`
	UpdatedBy string   `json:"updatedBy,omitempty"`
	UpdatedAt int64    `json:"updatedAt,omitempty"`
	Seen      bool     `json:"seen,omitempty"`
}

// FileRef describes one uploaded attachment file. Key is the object-storage
// key the server presigned; URL is the last presigned GET URL handed out.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Key  string `json:"key,omitempty"`
	URL  string `json:"url,omitempty"`
	Size int64  `json:"size"`
}

// Attachment groups the files one user contributed to a task.
type Attachment struct {
	At    int64     `json:"at"`
	Files []FileRef `json:"files"`
}

// Task is the payload schema of the "tasks" table. Nested collections are
// stored inline, so any task mutation rewrites the whole entity.
type Task struct {
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	ColumnID    string                `json:"columnId"`
	Tag         *Tag                  `json:"tag,omitempty"`
	Checklist   []CheckItem           `json:"checklist,omitempty"`
	Comments    []Comment             `json:"comments,omitempty"`
	Attachments map[string]Attachment `json:"attachments,omitempty"`
	AssignTo    map[string]Stamp      `json:"assignTo,omitempty"`
	SharedWith  map[string]Stamp      `json:"sharedWith,omitempty"`
	Views       map[string]Stamp      `json:"views,omitempty"`
	Priority    *Priority             `json:"priority,omitempty"`
	Due         int64                 `json:"due,omitempty"`
	Status      string                `json:"status,omitempty"`
	Archived    bool                  `json:"archived,omitempty"`
	MovedBy     string                `json:"movedBy,omitempty"`
	MovedAt     int64                 `json:"movedAt,omitempty"`
}

// FieldColumnID is the grouping key of the tasks table: tasks sharing a
// columnId form one ordered group.
const FieldColumnID = "columnId"

// Column is the payload schema of the "columns" table.
type Column struct {
	Title       string `json:"title"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// User is the payload schema of the "users" table. Admin mirrors the
// privilege claim of the identity provider; the authoritative check happens
// server-side.
type User struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Color       string `json:"color,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

var (
	ErrTitleRequired  = errors.New("title is required")
	ErrColumnRequired = errors.New("columnId is required")
	ErrEmailRequired  = errors.New("email is required")
)

// Validate checks the task payload at the service boundary.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(t.ColumnID) == "" {
		return ErrColumnRequired
	}
	return nil
}

// Validate checks the column payload at the service boundary.
func (c Column) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

// Validate checks the user payload at the service boundary.
func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}
