// Package cli is the interactive terminal frontend: a REPL over the task,
// column and user services, with login, connectivity status and background
// sync running underneath.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/KossiPascal/atlas-kanban/internal/client/config"
	"github.com/KossiPascal/atlas-kanban/internal/client/gateway"
	"github.com/KossiPascal/atlas-kanban/internal/client/realtime"
	"github.com/KossiPascal/atlas-kanban/internal/client/services"
	"github.com/KossiPascal/atlas-kanban/internal/client/store"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/filex"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
)

// App wires the whole client together and drives the REPL.
type App struct {
	config  *config.Config
	store   *store.Store
	gateway *gateway.Gateway
	channel *realtime.Channel
	sync    *syncer.Orchestrator
	tasks   *services.TaskService
	columns *services.ColumnService
	users   *services.UserService

	creds    *credentialStore
	userName string
	log      logging.Logger
	reader   *bufio.Reader
}

// NewApp builds the client stack from configuration: local mirror, API
// gateway, realtime channel, sync orchestrator and the entity services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	dsn := cfg.DatabaseDSN
	if dsn != ":memory:" && !filepath.IsAbs(dsn) {
		dir, err := filex.EnsureSubDir("data")
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, dsn)
	}

	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	creds := &credentialStore{}
	gw := gateway.New(cfg.ServerURL, creds)
	ch := realtime.New(cfg.WebsocketURL(), creds, log)
	o := syncer.New(st, gw, ch, log)

	return &App{
		config:  cfg,
		store:   st,
		gateway: gw,
		channel: ch,
		sync:    o,
		tasks:   services.NewTaskService(ctx, o, st, ch, gw, log),
		columns: services.NewColumnService(ctx, o, st, ch, log),
		users:   services.NewUserService(ctx, o, st, ch, log),
		creds:   creds,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.creds.loggedIn()
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.sync.Online() {
		s += "online"
	} else {
		s += "offline"
	}
	return "(" + s + ")"
}

// Run starts the background loops and the REPL, then tears everything down
// on exit.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.store.Close()
	defer a.channel.Disconnect()

	go a.sync.StartOnlineWatcher(ctx, a.config.OnlineCheckInterval)
	go a.sync.RunReconciler(ctx, a.config.SyncInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
