package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
	"github.com/KossiPascal/atlas-kanban/internal/server/documents"
	"github.com/KossiPascal/atlas-kanban/internal/server/hub"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "ok")
}

// includeAll reports whether the caller requested, and may use, unscoped
// listings.
func includeAll(r *http.Request) bool {
	return r.URL.Query().Get("all") == "true" && requestClaims(r).Admin
}

// notify broadcasts a table event carrying the affected ids.
func (a *API) notify(table, action string, ids ...string) {
	data, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return
	}
	a.hub.Broadcast(hub.Message{Event: table + ":" + action, Data: data})
}

// stamp fills the server-controlled fields of an incoming record: id when the
// client did not assign one, owner defaulting to the caller, and timestamps.
func stamp(rec *models.Record, principal string) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Owner == "" {
		rec.Owner = principal
	}
	now := models.Now()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = now
	}
	rec.Synced = true
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	recs, err := a.docs.List(r.Context(), chi.URLParam(r, "table"), claims.UserID, includeAll(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	respond(w, http.StatusOK, recs)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	rec, err := a.docs.Get(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	if rec.Deleted || !documents.Visible(rec, claims.UserID, claims.Admin) {
		respondErr(w, common.ErrNotFound)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")

	var rec models.Record
	if err := decodeBody(r, &rec); err != nil {
		respondErr(w, err)
		return
	}
	stamp(&rec, claims.UserID)

	if err := a.docs.Upsert(r.Context(), table, rec); err != nil {
		respondErr(w, err)
		return
	}

	a.notify(table, "created", rec.ID)
	respond(w, http.StatusOK, rec)
}

func (a *API) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")

	var recs []models.Record
	if err := decodeBody(r, &recs); err != nil {
		respondErr(w, err)
		return
	}
	ids := make([]string, 0, len(recs))
	for i := range recs {
		stamp(&recs[i], claims.UserID)
		ids = append(ids, recs[i].ID)
	}

	if err := a.docs.BulkUpsert(r.Context(), table, recs); err != nil {
		respondErr(w, err)
		return
	}

	a.notify(table, "created", ids...)
	respond(w, http.StatusOK, recs)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	var rec models.Record
	if err := decodeBody(r, &rec); err != nil {
		respondErr(w, err)
		return
	}
	rec.ID = id

	existing, err := a.docs.Get(r.Context(), table, id)
	if errors.Is(err, common.ErrNotFound) {
		// Updating an id the server has never seen is an upsert; offline
		// clients push edits of records the server lost.
		stamp(&rec, claims.UserID)
		if err := a.docs.Upsert(r.Context(), table, rec); err != nil {
			respondErr(w, err)
			return
		}
		a.notify(table, "updated", rec.ID)
		respond(w, http.StatusOK, rec)
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	if !claims.Admin && existing.Owner != claims.UserID {
		if !documents.Visible(existing, claims.UserID, false) {
			respondErr(w, common.ErrNotFound)
			return
		}
		respondErr(w, common.ErrPermissionDenied)
		return
	}

	// Identity fields survive the rewrite.
	rec.Owner = existing.Owner
	rec.CreatedAt = existing.CreatedAt
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = models.Now()
	}
	rec.Synced = true

	if err := a.docs.Upsert(r.Context(), table, rec); err != nil {
		respondErr(w, err)
		return
	}

	a.notify(table, "updated", rec.ID)
	respond(w, http.StatusOK, rec)
}

func (a *API) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")

	var recs []models.Record
	if err := decodeBody(r, &recs); err != nil {
		respondErr(w, err)
		return
	}
	ids := make([]string, 0, len(recs))
	for i := range recs {
		if recs[i].ID == "" {
			respondErr(w, common.ErrMissingID)
			return
		}
		stamp(&recs[i], claims.UserID)
		ids = append(ids, recs[i].ID)
	}

	if err := a.docs.BulkUpsert(r.Context(), table, recs); err != nil {
		respondErr(w, err)
		return
	}

	a.notify(table, "updated", ids...)
	respond(w, http.StatusOK, recs)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	existing, err := a.docs.Get(r.Context(), table, id)
	if errors.Is(err, common.ErrNotFound) {
		// Deleting what is already gone converges.
		respond(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	if !claims.Admin && existing.Owner != claims.UserID {
		if !documents.Visible(existing, claims.UserID, false) {
			respond(w, http.StatusOK, nil)
			return
		}
		respondErr(w, common.ErrPermissionDenied)
		return
	}

	if err := a.docs.Delete(r.Context(), table, id); err != nil {
		respondErr(w, err)
		return
	}

	a.notify(table, "deleted", id)
	respond(w, http.StatusOK, nil)
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	table := chi.URLParam(r, "table")

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}
	if len(body.IDs) == 0 {
		respondErr(w, common.ErrEmptyBatch)
		return
	}
	if len(body.IDs) > common.MaxBatchSize {
		respondErr(w, common.ErrBatchTooLarge)
		return
	}

	// Ids the caller may not delete are skipped, not failed: a tombstone push
	// must converge even when some records are already gone.
	deletable := make([]string, 0, len(body.IDs))
	for _, id := range body.IDs {
		existing, err := a.docs.Get(r.Context(), table, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			respondErr(w, err)
			return
		}
		if claims.Admin || existing.Owner == claims.UserID {
			deletable = append(deletable, id)
		}
	}

	if len(deletable) > 0 {
		if err := a.docs.BulkDelete(r.Context(), table, deletable); err != nil {
			respondErr(w, err)
			return
		}
		a.notify(table, "deleted", deletable...)
	}

	respond(w, http.StatusOK, nil)
}

func (a *API) handleByField(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)

	var body struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	recs, err := a.docs.GetByField(r.Context(), chi.URLParam(r, "table"), body.Field, body.Value, claims.UserID, claims.Admin)
	if err != nil {
		respondErr(w, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	respond(w, http.StatusOK, recs)
}

func (a *API) handleBulkGet(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)

	var body struct {
		Field  string            `json:"field"`
		Values []json.RawMessage `json:"values"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	recs, err := a.docs.BulkGetByFieldValues(r.Context(), chi.URLParam(r, "table"), body.Field, body.Values, claims.UserID, claims.Admin)
	if err != nil {
		respondErr(w, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	respond(w, http.StatusOK, recs)
}
