package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rjnmav/mongoscope/internal/config"
	"github.com/rjnmav/mongoscope/internal/connection"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/credential"
	"github.com/rjnmav/mongoscope/internal/listing"
	"github.com/rjnmav/mongoscope/internal/query"
	"github.com/rjnmav/mongoscope/internal/storage"
	"github.com/rjnmav/mongoscope/internal/types"
)

// App wires the connection manager, the query dispatcher, and the supporting
// services behind one facade. The shell calls in; everything asynchronous
// comes back through the ResultChannel the app was built with.
type App struct {
	cfg        *config.Config
	log        zerolog.Logger
	manager    *connection.Manager
	dispatcher *query.Dispatcher
	store      *storage.Store
	credential *credential.Service

	// mu guards active, the signature of the connection the shell is
	// browsing. Both the caller's thread and the auto-connect timer
	// goroutine touch it.
	mu     sync.RWMutex
	active string
}

// NewApp builds the application around channel.
func NewApp(cfg *config.Config, channel core.ResultChannel, log zerolog.Logger) *App {
	return newApp(cfg, channel, log, connection.Options{
		ConnectTimeout: cfg.Database.ConnectTimeout,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		Logger:         log.With().Str("component", "connection").Logger(),
	}, storage.InitConfigDir())
}

func newApp(cfg *config.Config, channel core.ResultChannel, log zerolog.Logger, connOpts connection.Options, configDir string) *App {
	manager := connection.NewManager(channel, connOpts)
	dispatcher := query.NewDispatcher(manager, channel, query.Options{
		Workers:      cfg.Query.Workers,
		QueryTimeout: cfg.Database.QueryTimeout,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		Logger:       log.With().Str("component", "query").Logger(),
	})

	return &App{
		cfg:        cfg,
		log:        log,
		manager:    manager,
		dispatcher: dispatcher,
		store:      storage.NewStore(configDir),
		credential: credential.NewService(),
	}
}

func (a *App) setActive(sig string) {
	a.mu.Lock()
	a.active = sig
	a.mu.Unlock()
}

func (a *App) activeSignature() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// Connect establishes a connection the user asked for. On success the config
// is remembered as a recent connection and the password stored in the OS
// keyring; on failure the typed error is returned for the shell to surface.
func (a *App) Connect(cfg types.ConnectionConfig) error {
	if cfg.Password == "" && cfg.Username != "" {
		if pw, err := a.credential.GetPassword(cfg.Signature()); err == nil {
			cfg.Password = pw
		}
	}

	h, err := a.manager.Connect(cfg)
	if err != nil {
		return err
	}
	a.setActive(h.Signature())

	if err := a.store.Remember(cfg); err != nil {
		a.log.Warn().Err(err).Msg("could not persist recent connection")
	}
	if err := a.credential.SetPassword(cfg.Signature(), cfg.Password); err != nil {
		a.log.Warn().Err(err).Msg("could not store password in keyring")
	}
	return nil
}

// AutoConnect attempts the configured default connection on startup. Failures
// are logged and swallowed, and the state is reset to disconnected so the
// user can still connect manually. Manual Connect surfaces the same errors
// verbatim; the difference between the two paths is policy here, not in the
// manager.
func (a *App) AutoConnect() {
	if !a.cfg.Database.AutoConnectLocalhost {
		return
	}

	cfg := types.ConnectionConfig{
		Host:       a.cfg.Database.DefaultHost,
		Port:       a.cfg.Database.DefaultPort,
		AuthSource: a.cfg.Database.DefaultAuthDB,
	}

	h, err := a.manager.Connect(cfg)
	if err != nil {
		a.log.Warn().Str("target", cfg.DisplayName()).Err(err).Msg("auto-connect failed")
		a.manager.Reset(cfg.Signature())
		return
	}
	a.setActive(h.Signature())
	a.log.Info().Str("target", cfg.DisplayName()).Msg("auto-connected")
}

// Query submits a query against the active connection and returns its token.
func (a *App) Query(req types.QueryRequest) (uint64, error) {
	return a.dispatcher.Submit(a.manager.Handle(a.activeSignature()), req)
}

// CancelQuery withdraws interest in a previously submitted query.
func (a *App) CancelQuery(token uint64) {
	a.dispatcher.Cancel(token)
}

// Databases lists the databases on the active connection.
func (a *App) Databases() ([]types.DatabaseInfo, error) {
	return listing.Databases(a.manager.Handle(a.activeSignature()))
}

// Collections lists the collections in a database on the active connection.
func (a *App) Collections(dbName string) ([]types.CollectionInfo, error) {
	return listing.Collections(a.manager.Handle(a.activeSignature()), dbName)
}

// Disconnect tears down the active connection, if any.
func (a *App) Disconnect() {
	a.manager.Disconnect(a.manager.Handle(a.activeSignature()))
	a.setActive("")
}

// ConnectionState reports the state of the active connection.
func (a *App) ConnectionState() types.ConnectionState {
	return a.manager.State(a.activeSignature())
}

// RecentConnections returns the stored recent connections, most recent first.
func (a *App) RecentConnections() ([]types.RecentConnection, error) {
	return a.store.Load()
}

// Shutdown disconnects everything.
func (a *App) Shutdown(ctx context.Context) {
	a.manager.Shutdown(ctx)
}
