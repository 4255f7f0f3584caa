// Package httpapi exposes the REST and websocket surface of the server:
// document CRUD under /api/{table}, auth, attachment presigning, a health
// probe, and the event hub upgrade.
package httpapi

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
	"github.com/KossiPascal/atlas-kanban/internal/server/hub"
	"github.com/KossiPascal/atlas-kanban/internal/server/users"
)

// DocumentStore is the slice of the documents repository the handlers use.
type DocumentStore interface {
	List(ctx context.Context, table string, principal string, includeAll bool) ([]models.Record, error)
	Get(ctx context.Context, table string, id string) (*models.Record, error)
	GetByField(ctx context.Context, table string, field string, value json.RawMessage, principal string, includeAll bool) ([]models.Record, error)
	BulkGetByFieldValues(ctx context.Context, table string, field string, values []json.RawMessage, principal string, includeAll bool) ([]models.Record, error)
	Upsert(ctx context.Context, table string, rec models.Record) error
	BulkUpsert(ctx context.Context, table string, recs []models.Record) error
	Delete(ctx context.Context, table string, id string) error
	BulkDelete(ctx context.Context, table string, ids []string) error
}

// Accounts is the account service surface the auth handlers use.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*users.TokenPair, error)
	Login(ctx context.Context, email, password string) (*users.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*users.TokenPair, error)
}

// Presigner issues short-lived object storage URLs.
type Presigner interface {
	PresignedPutURL(ctx context.Context, key string) (string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

// Broadcaster fans table events out to connected clients and serves upgraded
// websocket connections.
type Broadcaster interface {
	Broadcast(msg hub.Message)
	Serve(conn *websocket.Conn)
}

// API wires the handlers to their dependencies.
type API struct {
	log       logging.Logger
	docs      DocumentStore
	accounts  Accounts
	presigner Presigner
	hub       Broadcaster
	secret    []byte
}

// New constructs the API.
func New(log logging.Logger, docs DocumentStore, accounts Accounts, presigner Presigner, broadcaster Broadcaster, secret []byte) *API {
	return &API{
		log:       log,
		docs:      docs,
		accounts:  accounts,
		presigner: presigner,
		hub:       broadcaster,
		secret:    secret,
	}
}

// Router builds the chi router with every route mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", a.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/refresh", a.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)

		r.Route("/api/attachments", func(r chi.Router) {
			r.Post("/presign-put", a.handlePresignPut)
			r.Post("/presign-get", a.handlePresignGet)
		})

		r.Route("/api/{table}", func(r chi.Router) {
			r.Get("/", a.handleList)
			r.Post("/", a.handleCreate)
			r.Post("/bulk-create", a.handleBulkCreate)
			r.Put("/bulk-update", a.handleBulkUpdate)
			r.Post("/bulk-delete", a.handleBulkDelete)
			r.Post("/by-field", a.handleByField)
			r.Post("/bulk-get", a.handleBulkGet)
			r.Get("/{id}", a.handleGet)
			r.Put("/{id}", a.handleUpdate)
			r.Delete("/{id}", a.handleDelete)
		})
	})

	r.Get("/ws", a.handleWebsocket)

	return r
}
