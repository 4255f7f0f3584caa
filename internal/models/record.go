// Package models defines the record envelope shared by the client mirror and
// the server document store, plus the per-table payload schemas.
package models

import (
	"encoding/json"
	"time"
)

// Table names a logical collection of records.
type Table string

const (
	TableTasks   Table = "tasks"
	TableColumns Table = "columns"
	TableUsers   Table = "users"
)

// Tables lists the standard collections every client mirrors.
var Tables = []Table{TableColumns, TableTasks, TableUsers}

// Known reports whether t is one of the standard tables. Unknown tables are
// still accepted by the local store (lazy creation) but rejected at the
// service boundary.
func (t Table) Known() bool {
	switch t {
	case TableTasks, TableColumns, TableUsers:
		return true
	}
	return false
}

// Metadata field names, reserved in every table. Everything else on a record
// is table-specific payload.
const (
	FieldID        = "id"
	FieldOwner     = "owner"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldSynced    = "synced"
	FieldDeleted   = "deleted"
	FieldPosition  = "position"
)

// Record is a typed envelope over a schema-less document: stable metadata
// fields plus an open payload. On the wire and in storage JSON it flattens
// to a single object, so a task record looks exactly like the task the UI
// edits.
//
// Synced=false marks local mutations not yet acknowledged by the
// authoritative store. Deleted=true is a tombstone: the record stays visible
// until the deletion has round-tripped and is then physically purged.
type Record struct {
	ID        string
	Owner     string
	CreatedAt int64 // unix milliseconds
	UpdatedAt int64 // unix milliseconds, rewritten on every mutation
	Synced    bool
	Deleted   bool
	Position  int
	Payload   map[string]json.RawMessage
}

// Now returns the producer-local wall clock in unix milliseconds, the
// resolution every timestamp in the system uses.
func Now() int64 {
	return time.Now().UnixMilli()
}

func metadataField(name string) bool {
	switch name {
	case FieldID, FieldOwner, FieldCreatedAt, FieldUpdatedAt, FieldSynced, FieldDeleted, FieldPosition:
		return true
	}
	return false
}

// MarshalJSON flattens metadata and payload into one object.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+7)
	for k, v := range r.Payload {
		if metadataField(k) {
			continue
		}
		flat[k] = v
	}
	flat[FieldID] = r.ID
	flat[FieldOwner] = r.Owner
	flat[FieldCreatedAt] = r.CreatedAt
	flat[FieldUpdatedAt] = r.UpdatedAt
	flat[FieldSynced] = r.Synced
	flat[FieldDeleted] = r.Deleted
	flat[FieldPosition] = r.Position
	return json.Marshal(flat)
}

// UnmarshalJSON splits a flat object back into metadata and payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	*r = Record{Payload: make(map[string]json.RawMessage)}

	for k, v := range flat {
		var err error
		switch k {
		case FieldID:
			err = json.Unmarshal(v, &r.ID)
		case FieldOwner:
			err = json.Unmarshal(v, &r.Owner)
		case FieldCreatedAt:
			err = json.Unmarshal(v, &r.CreatedAt)
		case FieldUpdatedAt:
			err = json.Unmarshal(v, &r.UpdatedAt)
		case FieldSynced:
			err = json.Unmarshal(v, &r.Synced)
		case FieldDeleted:
			err = json.Unmarshal(v, &r.Deleted)
		case FieldPosition:
			err = json.Unmarshal(v, &r.Position)
		default:
			r.Payload[k] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Field returns the raw payload value for name, or nil when absent.
func (r *Record) Field(name string) json.RawMessage {
	if r.Payload == nil {
		return nil
	}
	return r.Payload[name]
}

// StringField decodes a payload field as a string; absent or non-string
// fields yield "".
func (r *Record) StringField(name string) string {
	raw := r.Field(name)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// SetField marshals v into the payload under name. Metadata names are
// silently ignored; they live on the envelope itself.
func (r *Record) SetField(name string, v any) error {
	if metadataField(name) {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if r.Payload == nil {
		r.Payload = make(map[string]json.RawMessage)
	}
	r.Payload[name] = b
	return nil
}

// Clone returns a deep copy. Raw payload values are immutable by convention,
// so sharing the underlying bytes is fine; the map itself is copied.
func (r Record) Clone() Record {
	cp := r
	if r.Payload != nil {
		cp.Payload = make(map[string]json.RawMessage, len(r.Payload))
		for k, v := range r.Payload {
			cp.Payload[k] = v
		}
	}
	return cp
}

// DecodePayload unmarshals the payload into a typed struct (Task, Column,
// User).
func (r *Record) DecodePayload(v any) error {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// EncodePayload replaces the payload with the fields of a typed struct.
func (r *Record) EncodePayload(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &payload); err != nil {
		return err
	}
	for k := range payload {
		if metadataField(k) {
			delete(payload, k)
		}
	}
	r.Payload = payload
	return nil
}
