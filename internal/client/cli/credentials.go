package cli

import (
	"context"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KossiPascal/atlas-kanban/internal/client/gateway"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/common"
)

// credentialStore holds the current token pair and satisfies
// gateway.CredentialSource. Zero value means not logged in.
type credentialStore struct {
	mu   sync.RWMutex
	pair gateway.TokenPair
}

func (c *credentialStore) AccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair.AccessToken, nil
}

func (c *credentialStore) RefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair.RefreshToken
}

func (c *credentialStore) set(pair gateway.TokenPair) {
	c.mu.Lock()
	c.pair = pair
	c.mu.Unlock()
}

func (c *credentialStore) clear() {
	c.set(gateway.TokenPair{})
}

func (c *credentialStore) loggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair.AccessToken != ""
}

// tokenClaims is the claim set the server puts in access tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Admin  bool   `json:"admin"`
}

// principalFromToken extracts the sync principal from an access token. The
// token is not verified here; the server is the authority, the client only
// needs the identity for scoping.
func principalFromToken(accessToken string) (syncer.Principal, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return syncer.Principal{}, common.ErrInvalidToken
	}
	if claims.UserID == "" {
		return syncer.Principal{}, common.ErrInvalidToken
	}
	return syncer.Principal{UserID: claims.UserID, Admin: claims.Admin}, nil
}
