// Package app wires the Pipit server runtime: config, logging, HTTP routes,
// and the realtime presence gateway.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pipit/cmd/identity"
	authapi "pipit/cmd/internal/auth/api"
	"pipit/cmd/internal/auth/gate"
	"pipit/cmd/internal/auth/session"
	"pipit/cmd/internal/presence"
	"pipit/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Pipit server runtime: it owns HTTP server wiring and the
// gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	auth    *authapi.Handler
	ws      *presence.Gateway
	history *presence.HistoryHandler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewService(tokenCfg)
	if err != nil {
		return nil, err
	}

	st, deps, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessions := session.NewService(tokens, deps.sessions)
	g := gate.New(tokens)

	authCfg := authapi.LoadConfigFromEnv()
	auth := authapi.NewHandler(log, authCfg, deps.users, sessions, tokens, g,
		authapi.WithEmailSender(authapi.LogEmailSender{Log: log}))

	ws, err := presence.NewGateway(log, presence.NewRegistry(), deps.messages, g)
	if err != nil {
		if closeErr := st.Close(context.Background()); closeErr != nil {
			log.Error("store.close.fail", "err", closeErr)
		}
		return nil, err
	}

	history := presence.NewHistoryHandler(log, deps.messages, g)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    deps.pool,
		dbEnabled: deps.pool != nil,
		auth:      auth,
		ws:        ws,
		history:   history,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.ws, a.history)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// storeDeps bundles the persistence implementations the runtime wires up.
type storeDeps struct {
	pool     *pgxpool.Pool
	users    identity.Store
	sessions session.Store
	messages presence.MessageStore
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, storeDeps, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, storeDeps{
			users:    identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			messages: presence.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, storeDeps{}, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model:
	// - app owns pool lifecycle
	// - per-package PostgresStore.Close() is a no-op
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}
	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}
	messages, err := presence.NewPostgresStore(pool) // default schema "pipit"
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}

	deps := storeDeps{pool: pool, users: users, sessions: sessions, messages: messages}
	return dbStore{pool: pool, msgStore: messages}, deps, nil
}

type dbStore struct {
	pool     *pgxpool.Pool
	msgStore presence.MessageStore
}

func (s dbStore) Close(_ context.Context) error {
	if s.msgStore != nil {
		_ = s.msgStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
