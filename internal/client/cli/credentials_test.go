package cli

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KossiPascal/atlas-kanban/internal/client/gateway"
	"github.com/KossiPascal/atlas-kanban/internal/common"
)

func signToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestPrincipalFromToken(t *testing.T) {
	token := signToken(t, tokenClaims{UserID: "u42", Admin: true})

	p, err := principalFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u42", p.UserID)
	assert.True(t, p.Admin)
}

func TestPrincipalFromToken_Invalid(t *testing.T) {
	_, err := principalFromToken("not-a-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	// A syntactically valid token without a user id is rejected too.
	token := signToken(t, tokenClaims{})
	_, err = principalFromToken(token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestCredentialStore(t *testing.T) {
	cs := &credentialStore{}
	assert.False(t, cs.loggedIn())

	tok, err := cs.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)

	cs.set(gateway.TokenPair{AccessToken: "at", RefreshToken: "rt"})
	assert.True(t, cs.loggedIn())
	tok, err = cs.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", tok)
	assert.Equal(t, "rt", cs.RefreshToken())

	cs.clear()
	assert.False(t, cs.loggedIn())
}
