package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/KossiPascal/atlas-kanban/internal/client/gateway"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email and password and creates a new account.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email:", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer wipe(password)

	pair, err := a.gateway.Register(ctx, email, string(password))
	if err != nil {
		fmt.Println("Registration failed:", err)
		return err
	}
	if err := a.adoptSession(ctx, email, *pair); err != nil {
		return err
	}
	fmt.Println("Success!")
	return nil
}

// Login prompts for credentials and starts a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email:", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer wipe(password)

	pair, err := a.gateway.Login(ctx, email, string(password))
	if err != nil {
		fmt.Println("Login failed:", err)
		return err
	}
	if err := a.adoptSession(ctx, email, *pair); err != nil {
		return err
	}
	fmt.Println("Success!")
	return nil
}

// adoptSession installs a token pair: principal scoping, realtime link,
// board seed and an initial sync.
func (a *App) adoptSession(ctx context.Context, email string, pair gateway.TokenPair) error {
	principal, err := principalFromToken(pair.AccessToken)
	if err != nil {
		return err
	}
	a.creds.set(pair)
	a.sync.SetPrincipal(principal)
	a.userName = email

	a.channel.Connect(ctx)

	if err := a.sync.SyncAll(ctx); err != nil {
		a.log.Warn(ctx, "initial sync incomplete", "error", err)
	}
	if err := a.columns.Seed(ctx); err != nil {
		a.log.Warn(ctx, "column seed failed", "error", err)
	}
	return nil
}

// Refresh rotates the refresh token into a new pair.
func (a *App) Refresh(ctx context.Context) error {
	rt := a.creds.RefreshToken()
	if rt == "" {
		fmt.Println("Not logged in")
		return nil
	}
	pair, err := a.gateway.Refresh(ctx, rt)
	if err != nil {
		fmt.Println("Refresh failed:", err)
		return err
	}
	a.creds.set(*pair)
	return nil
}

// Logout drops the session and disconnects the realtime link.
func (a *App) Logout(ctx context.Context) error {
	a.creds.clear()
	a.sync.SetPrincipal(syncer.Principal{})
	a.userName = ""
	a.channel.Disconnect()
	fmt.Println("Logged out")
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
