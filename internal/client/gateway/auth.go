package gateway

import (
	"context"
	"net/http"
)

// TokenPair is the credential bundle returned by login, register and refresh.
// The access token authenticates API and websocket traffic; the refresh token
// is single use and rotated on every refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns its first token pair.
func (g *Gateway) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	var pair TokenPair
	err := g.do(ctx, http.MethodPost, "/api/auth/register", nil, credentialsRequest{Email: email, Password: password}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Login exchanges credentials for a token pair.
func (g *Gateway) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var pair TokenPair
	err := g.do(ctx, http.MethodPost, "/api/auth/login", nil, credentialsRequest{Email: email, Password: password}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Refresh rotates a refresh token into a fresh pair.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair TokenPair
	err := g.do(ctx, http.MethodPost, "/api/auth/refresh", nil, map[string]string{"refreshToken": refreshToken}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// PresignedUploadURL asks the server for a short-lived PUT URL for an
// attachment object key.
func (g *Gateway) PresignedUploadURL(ctx context.Context, key string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := g.do(ctx, http.MethodPost, "/api/attachments/presign-put", nil, map[string]string{"key": key}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

// PresignedDownloadURL asks the server for a short-lived GET URL for an
// attachment object key.
func (g *Gateway) PresignedDownloadURL(ctx context.Context, key string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := g.do(ctx, http.MethodPost, "/api/attachments/presign-get", nil, map[string]string{"key": key}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}
