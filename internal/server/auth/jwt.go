// Package auth issues and verifies the HS256 access tokens used by the HTTP
// API. Claims carry the user id and the admin flag so handlers can scope
// document visibility without a user lookup per request.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KossiPascal/atlas-kanban/internal/common"
)

// Claims extends the registered JWT claims with the fields the document
// handlers need. The json keys are part of the wire contract with the client.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Admin  bool   `json:"admin"`
}

// GenerateToken signs an HS256 access token for userID expiring after
// validityDuration.
func GenerateToken(userID string, admin bool, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
		Admin:  admin,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry of tokenString and returns its
// claims. Expired or otherwise invalid tokens yield common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
