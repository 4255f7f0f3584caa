// Package users implements account management: registration, credential
// verification, and access/refresh token issuance.
package users

import "time"

// User is an account row. PasswordHash is a bcrypt hash and never leaves the
// package.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Color        string
	Admin        bool
}

// RefreshToken is the stored metadata of an opaque refresh token.
type RefreshToken struct {
	UserID  string
	Expires time.Time
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
