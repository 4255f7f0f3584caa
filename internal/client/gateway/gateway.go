// Package gateway is the typed HTTP client for the kanban API. Every response
// body is the {status,data} envelope; non-2xx statuses and transport failures
// map onto the shared sentinel errors so callers can branch with errors.Is.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// CredentialSource supplies the bearer token attached to every request.
// The auth service implements it; tests use a fixed-string stub.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticCredentials is a CredentialSource returning a fixed token. The empty
// string means unauthenticated requests.
type StaticCredentials string

func (s StaticCredentials) AccessToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// Gateway talks to one kanban server.
type Gateway struct {
	baseURL string
	creds   CredentialSource
	client  *http.Client
}

// New returns a Gateway for the given server base URL.
func New(baseURL string, creds CredentialSource) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the uniform response body: a 2xx status carries data, anything
// else carries an error message.
type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
}

func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := g.creds.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return common.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", common.ErrUnavailable, resp.StatusCode)
	}

	if len(raw) == 0 {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("request failed: server returned %d", resp.StatusCode)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status >= 300 || resp.StatusCode >= 400 {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("server returned %d", resp.StatusCode)
		}
		return fmt.Errorf("request failed: %s", msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// Ping reports whether the server is reachable and healthy.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// List fetches every visible record of a table. With includeAll the server
// drops owner scoping for admin callers.
func (g *Gateway) List(ctx context.Context, table models.Table, includeAll bool) ([]models.Record, error) {
	var q url.Values
	if includeAll {
		q = url.Values{"all": {"true"}}
	}
	var recs []models.Record
	if err := g.do(ctx, http.MethodGet, "/api/"+string(table), q, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Get fetches a single record by id.
func (g *Gateway) Get(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	var rec models.Record
	if err := g.do(ctx, http.MethodGet, "/api/"+string(table)+"/"+id, nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create stores a new record and returns the server's copy.
func (g *Gateway) Create(ctx context.Context, table models.Table, rec models.Record) (*models.Record, error) {
	var out models.Record
	if err := g.do(ctx, http.MethodPost, "/api/"+string(table), nil, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkCreate upserts a batch in one request. The push pass uses it; the
// server treats existing ids as updates, so a retried batch is idempotent.
func (g *Gateway) BulkCreate(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	if len(recs) == 0 {
		return nil, common.ErrEmptyBatch
	}
	if len(recs) > common.MaxBatchSize {
		return nil, common.ErrBatchTooLarge
	}
	var out []models.Record
	if err := g.do(ctx, http.MethodPost, "/api/"+string(table)+"/bulk-create", nil, recs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the record with the given id.
func (g *Gateway) Update(ctx context.Context, table models.Table, rec models.Record) (*models.Record, error) {
	if rec.ID == "" {
		return nil, common.ErrMissingID
	}
	var out models.Record
	if err := g.do(ctx, http.MethodPut, "/api/"+string(table)+"/"+rec.ID, nil, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkUpdate replaces a batch of records in one request.
func (g *Gateway) BulkUpdate(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	if len(recs) == 0 {
		return nil, common.ErrEmptyBatch
	}
	if len(recs) > common.MaxBatchSize {
		return nil, common.ErrBatchTooLarge
	}
	for _, r := range recs {
		if r.ID == "" {
			return nil, common.ErrMissingID
		}
	}
	var out []models.Record
	if err := g.do(ctx, http.MethodPut, "/api/"+string(table)+"/bulk-update", nil, recs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record with the given id.
func (g *Gateway) Delete(ctx context.Context, table models.Table, id string) error {
	return g.do(ctx, http.MethodDelete, "/api/"+string(table)+"/"+id, nil, nil, nil)
}

// BulkDelete removes a batch of ids in one request.
func (g *Gateway) BulkDelete(ctx context.Context, table models.Table, ids []string) error {
	if len(ids) == 0 {
		return common.ErrEmptyBatch
	}
	if len(ids) > common.MaxBatchSize {
		return common.ErrBatchTooLarge
	}
	return g.do(ctx, http.MethodPost, "/api/"+string(table)+"/bulk-delete", nil, map[string][]string{"ids": ids}, nil)
}

// ByField fetches records whose field equals value.
func (g *Gateway) ByField(ctx context.Context, table models.Table, field string, value any) ([]models.Record, error) {
	body := map[string]any{"field": field, "value": value}
	var recs []models.Record
	if err := g.do(ctx, http.MethodPost, "/api/"+string(table)+"/by-field", nil, body, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// BulkGet fetches records whose field equals any of the values. The pull
// pass uses it with field "owner" to fetch the caller's visible set.
func (g *Gateway) BulkGet(ctx context.Context, table models.Table, field string, values []any) ([]models.Record, error) {
	body := map[string]any{"field": field, "values": values}
	var recs []models.Record
	if err := g.do(ctx, http.MethodPost, "/api/"+string(table)+"/bulk-get", nil, body, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
