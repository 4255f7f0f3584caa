package httpapi

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/KossiPascal/atlas-kanban/internal/server/users"
)

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func toTokenPairResponse(pair *users.TokenPair) tokenPairResponse {
	return tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	pair, err := a.accounts.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		respondErr(w, err)
		return
	}

	respond(w, http.StatusOK, toTokenPairResponse(pair))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	pair, err := a.accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		respondErr(w, err)
		return
	}

	respond(w, http.StatusOK, toTokenPairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	pair, err := a.accounts.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		respondErr(w, err)
		return
	}

	respond(w, http.StatusOK, toTokenPairResponse(pair))
}

type presignRequest struct {
	Key string `json:"key"`
}

type presignResponse struct {
	URL string `json:"url"`
}

func (a *API) handlePresignPut(w http.ResponseWriter, r *http.Request) {
	var body presignRequest
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	url, err := a.presigner.PresignedPutURL(r.Context(), body.Key)
	if err != nil {
		respondErr(w, err)
		return
	}

	respond(w, http.StatusOK, presignResponse{URL: url})
}

func (a *API) handlePresignGet(w http.ResponseWriter, r *http.Request) {
	var body presignRequest
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, err)
		return
	}

	url, err := a.presigner.PresignedGetURL(r.Context(), body.Key)
	if err != nil {
		respondErr(w, err)
		return
	}

	respond(w, http.StatusOK, presignResponse{URL: url})
}

// handleWebsocket authenticates the handshake, upgrades, and hands the
// connection to the hub. It blocks for the life of the connection.
func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if _, err := a.claimsFromRequest(r); err != nil {
		respondErr(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		a.log.Debug(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	a.hub.Serve(conn)
}
