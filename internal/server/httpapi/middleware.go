package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/server/auth"
)

type ctxKey int

const claimsKey ctxKey = iota

// authMiddleware verifies the bearer token and stores its claims in the
// request context.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			respondErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func (a *API) claimsFromRequest(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get(common.AuthHeaderName)
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return nil, common.ErrUnauthorized
	}
	claims, err := auth.ParseToken(strings.TrimPrefix(header, common.BearerPrefix), a.secret)
	if err != nil {
		return nil, common.ErrUnauthorized
	}
	return claims, nil
}

// requestClaims returns the claims the middleware stored. Handlers behind the
// middleware can rely on them being present.
func requestClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
