package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

func success(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": 200, "data": data})
}

func TestGateway_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		success(w, []map[string]any{
			{"id": "t1", "owner": "u1", "title": "first", "position": 0},
			{"id": "t2", "owner": "u1", "title": "second", "position": 1},
		})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("token123"))
	recs, err := g.List(context.Background(), models.TableTasks, false)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "t1", recs[0].ID)
	assert.Equal(t, "first", recs[0].StringField("title"))
	assert.Equal(t, 1, recs[1].Position)
}

func TestGateway_ListAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		success(w, []map[string]any{})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("token123"))
	_, err := g.List(context.Background(), models.TableTasks, true)
	require.NoError(t, err)
}

func TestGateway_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tasks", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo", body["title"])
		success(w, body)
	}))
	defer srv.Close()

	var rec models.Record
	rec.ID = "t1"
	require.NoError(t, rec.SetField("title", "demo"))

	g := New(srv.URL, StaticCredentials("token123"))
	out, err := g.Create(context.Background(), models.TableTasks, rec)
	require.NoError(t, err)
	assert.Equal(t, "t1", out.ID)
}

func TestGateway_BulkCreateValidation(t *testing.T) {
	g := New("http://localhost:0", StaticCredentials(""))

	_, err := g.BulkCreate(context.Background(), models.TableTasks, nil)
	assert.ErrorIs(t, err, common.ErrEmptyBatch)

	big := make([]models.Record, common.MaxBatchSize+1)
	_, err = g.BulkCreate(context.Background(), models.TableTasks, big)
	assert.ErrorIs(t, err, common.ErrBatchTooLarge)
}

func TestGateway_BulkDeleteValidation(t *testing.T) {
	g := New("http://localhost:0", StaticCredentials(""))

	err := g.BulkDelete(context.Background(), models.TableTasks, nil)
	assert.ErrorIs(t, err, common.ErrEmptyBatch)

	big := make([]string, common.MaxBatchSize+1)
	err = g.BulkDelete(context.Background(), models.TableTasks, big)
	assert.ErrorIs(t, err, common.ErrBatchTooLarge)
}

func TestGateway_UpdateRequiresID(t *testing.T) {
	g := New("http://localhost:0", StaticCredentials(""))

	_, err := g.Update(context.Background(), models.TableTasks, models.Record{})
	assert.ErrorIs(t, err, common.ErrMissingID)
}

func TestGateway_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials(""))
	_, err := g.List(context.Background(), models.TableTasks, false)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestGateway_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	_, err := g.Get(context.Background(), models.TableTasks, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGateway_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	err := g.Ping(context.Background())
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestGateway_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	g := New(srv.URL, StaticCredentials("t"))
	err := g.Ping(context.Background())
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestGateway_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 400, "error": "title is required"})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	_, err := g.Create(context.Background(), models.TableTasks, models.Record{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")
}

func TestGateway_BulkDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/bulk-delete", r.URL.Path)
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body["ids"])
		success(w, nil)
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	require.NoError(t, g.BulkDelete(context.Background(), models.TableTasks, []string{"a", "b"}))
}

func TestGateway_BulkGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/bulk-get", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "owner", body["field"])
		success(w, []map[string]any{{"id": "t1", "owner": "u1"}})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	recs, err := g.BulkGet(context.Background(), models.TableTasks, "owner", []any{"u1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].Owner)
}

func TestGateway_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var body credentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body.Email)
		success(w, TokenPair{AccessToken: "at", RefreshToken: "rt"})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials(""))
	pair, err := g.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "at", pair.AccessToken)
	assert.Equal(t, "rt", pair.RefreshToken)
}

func TestGateway_PresignedUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/attachments/presign-put", r.URL.Path)
		success(w, map[string]string{"url": "https://bucket.example/obj?sig=x"})
	}))
	defer srv.Close()

	g := New(srv.URL, StaticCredentials("t"))
	u, err := g.PresignedUploadURL(context.Background(), "obj")
	require.NoError(t, err)
	assert.Contains(t, u, "sig=x")
}
