package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/models"
	"github.com/KossiPascal/atlas-kanban/internal/server/attachments"
)

// errMalformedBody covers undecodable request bodies.
var errMalformedBody = errors.New("malformed request body")

// envelope is the wire shape of every response: {status, data} on success,
// {status, error} on failure.
type envelope struct {
	Status int    `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: status, Data: data})
}

func respondErr(w http.ResponseWriter, err error) {
	status := errStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: status, Error: err.Error()})
}

// errStatus maps sentinel errors to HTTP status codes. The client's gateway
// folds 401/403 into ErrUnauthorized and 404 into ErrNotFound, so the exact
// code matters.
func errStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrLoginAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrEmptyBatch),
		errors.Is(err, common.ErrBatchTooLarge),
		errors.Is(err, common.ErrMissingID),
		errors.Is(err, common.ErrUnknownTable),
		errors.Is(err, attachments.ErrInvalidKey),
		errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrEmailRequired),
		errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errMalformedBody
	}
	return nil
}
