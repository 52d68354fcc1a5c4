// Package app wires the core together: config, store, auth, API client,
// orchestrator, location capture and the status hub. Both the standalone
// daemon and the FFI bridge embed the same App.
package app

import (
	"context"

	"github.com/wirasto/fieldsync/internal/api"
	"github.com/wirasto/fieldsync/internal/auth"
	"github.com/wirasto/fieldsync/internal/config"
	"github.com/wirasto/fieldsync/internal/crypto"
	"github.com/wirasto/fieldsync/internal/db"
	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/location"
	"github.com/wirasto/fieldsync/internal/logging"
	"github.com/wirasto/fieldsync/internal/models"
	"github.com/wirasto/fieldsync/internal/status"
	"github.com/wirasto/fieldsync/internal/sync"
)

// App is the assembled core.
type App struct {
	Config       *config.Config
	Store        *db.Store
	Client       *api.Client
	Auth         *auth.Manager
	Orchestrator *sync.Orchestrator
	Capture      *location.Capture
	Hub          *status.Hub

	database *db.DB
	cancel   context.CancelFunc
}

// New builds the core from the configuration file at cfgPath. A missing
// file falls back to defaults; a present file must name the API base URL.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	initLogging(cfg.Logging)

	database, err := db.Open(cfg.Data.Dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open local store", err)
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, err
	}

	store := db.NewStore(database.DB)
	if cfg.Data.DeviceID != "" {
		store.SetCredentialCipher(crypto.DeriveKey(cfg.Data.DeviceID))
	}
	hub := status.NewHub()

	// The client and the auth manager reference each other: the manager
	// refreshes through the client, the client draws tokens and exemption
	// decisions from the manager. The closures below resolve the cycle.
	var manager *auth.Manager
	client := api.NewClient(api.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.RequestTimeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Exempt: func(rawURL string) bool {
			if manager == nil {
				return false
			}
			return manager.IsExempt(rawURL)
		},
	}, nil)

	manager, err = auth.NewManager(store, client, cfg.API.StorageHosts)
	if err != nil {
		database.Close()
		return nil, err
	}
	client.SetTokenSource(manager)

	return &App{
		Config:       cfg,
		Store:        store,
		Client:       client,
		Auth:         manager,
		Orchestrator: sync.NewOrchestrator(store, client, hub, cfg.Sync),
		Capture:      location.NewCapture(store, cfg.Location),
		Hub:          hub,
		database:     database,
	}, nil
}

func initLogging(cfg config.LoggingConfig) {
	level := logging.LogLevel(cfg.Level)
	switch level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		level = logging.LevelInfo
	}
	if cfg.File != "" {
		logging.InitFile(cfg.File, level, cfg.MaxSizeMB, cfg.MaxBackups)
	}
	// Without a file the logger defaults to stdout on first use.
}

// Start launches the background pieces: the periodic sync loop, the status
// endpoint and the auth-state watcher. Non-blocking; Close stops them.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Orchestrator.Start(ctx)

	go func() {
		if err := a.Hub.ListenAndServe(ctx, a.Config.Status.Addr); err != nil {
			logging.Error("Status endpoint failed", err)
		}
	}()

	// A fresh login releases any auth-suspended backlog.
	states, cancelSub := a.Auth.Subscribe()
	go func() {
		defer cancelSub()
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-states:
				if !ok {
					return
				}
				if state == auth.StateValid {
					a.Orchestrator.OnAuthenticated()
				}
				if state == auth.StateUnauthenticated {
					a.Hub.Publish("auth.required", nil)
				}
			}
		}
	}()

	if a.Auth.State() != auth.StateUnauthenticated {
		a.Orchestrator.TriggerSync()
	}

	logging.Info("Core started", map[string]interface{}{
		"data_dir": a.Config.Data.Dir, "status_addr": a.Config.Status.Addr,
	})
}

// Login authenticates against the remote authority, installs the session
// and mirrors the user profile.
func (a *App) Login(ctx context.Context, username, password, oneTimeCode string) (*models.User, error) {
	result, err := a.Client.Login(ctx, api.LoginRequest{
		Username:    username,
		Password:    password,
		OneTimeCode: oneTimeCode,
	})
	if err != nil {
		return nil, err
	}

	if err := a.Store.UpsertUser(&result.User); err != nil {
		logging.Error("Failed to mirror user profile", err)
	}
	if err := a.Auth.SetSession(result.User.ID, result.TokenPair()); err != nil {
		return nil, err
	}

	logging.Info("Logged in", map[string]interface{}{"user": result.User.Username})
	return &result.User, nil
}

// Logout clears the session. Queued mutations survive and deliver after
// the next login.
func (a *App) Logout() error {
	return a.Auth.Logout()
}

// Close stops background work and releases the store.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.Orchestrator.Wait()
	a.Store.Close()
	return a.database.Close()
}
