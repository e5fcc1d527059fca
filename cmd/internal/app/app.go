// Package app wires the binhacken server: config, logging, stores, HTTP
// routes and the session notifier.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"binhacken/cmd/identity"
	"binhacken/cmd/internal/auth/api"
	"binhacken/cmd/internal/auth/authn"
	"binhacken/cmd/internal/auth/cookie"
	"binhacken/cmd/internal/auth/session"
	"binhacken/cmd/internal/auth/websession"
	"binhacken/cmd/internal/metrics"
	"binhacken/cmd/internal/notify"
	"binhacken/cmd/security/password"
)

// App owns every long-lived dependency of the server.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics  *metrics.Metrics
	ids      *identity.Service
	sessions *session.Service
	conns    *websession.Manager
	hub      *notify.Hub
	auth     *authn.Authenticator
	api      *api.Handler
	ws       *notify.Gateway
	sweeper  *session.Sweeper
}

// New builds an App from cfg. Postgres is used when cfg.DatabaseURL is set
// and Redis when cfg.RedisURL is set; otherwise everything is in memory.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	authCfg, err := authn.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	hasher, err := tokenHasher(sessCfg, log)
	if err != nil {
		return nil, err
	}
	ckCfg, err := cookieConfig(authCfg.KeyMode.IdentityCookie(), cfg.DevMode, log)
	if err != nil {
		return nil, err
	}
	codec, err := cookie.New(ckCfg)
	if err != nil {
		return nil, err
	}

	var (
		idStore   identity.Repository
		sessStore session.Store
		auditor   api.Auditor
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		idStore = identity.NewMemoryStore()
		sessStore = session.NewMemoryStore()
	} else {
		if a.dbPool, err = NewDBPool(ctx, cfg, log); err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		if idStore, err = identity.NewPostgresStore(a.dbPool, identity.WithSchema(cfg.DBSchema)); err != nil {
			return nil, err
		}
		if sessStore, err = session.NewPostgresStore(a.dbPool, cfg.DBSchema); err != nil {
			return nil, err
		}
		if auditor, err = api.NewPostgresAuditor(a.dbPool, cfg.DBSchema); err != nil {
			return nil, err
		}
	}

	var (
		connStore websession.Store
		throttle  api.Throttle
	)
	apiCfg := api.LoadConfigFromEnv()
	if cfg.RedisURL == "" {
		connStore = websession.NewMemoryStore()
	} else {
		if a.rdb, err = websession.DialRedis(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
		log.Info("redis.enabled")
		connStore = websession.NewRedisStore(a.rdb)
		throttle = api.NewRedisThrottle(a.rdb, apiCfg.LoginMaxFailures, apiCfg.LoginWindow)
	}

	if a.ids, err = identity.NewService(idStore, pwCfg, identity.WithLogger(log)); err != nil {
		return nil, err
	}
	a.sessions = session.NewService(sessCfg, sessStore,
		session.WithLogger(log),
		session.WithMetrics(a.metrics),
		session.WithHasher(hasher),
	)
	a.conns = websession.NewManager(connStore, cfg.WebSessionTTL, ckCfg.Secure, ckCfg.Domain)
	a.hub = notify.NewHub(log, a.metrics)

	if a.auth, err = authn.New(authCfg, a.ids, a.sessions, codec, a.conns,
		authn.WithLogger(log),
		authn.WithMetrics(a.metrics),
		authn.WithNotifier(a.hub),
	); err != nil {
		return nil, err
	}

	a.api = api.NewHandler(a.auth, apiCfg,
		api.WithLogger(log),
		api.WithThrottle(throttle),
		api.WithAuditor(auditor),
	)
	a.ws = notify.NewGateway(a.hub, identifyPrincipal, notify.ConfigFromEnv(), log)
	a.sweeper = session.NewSweeper(a.sessions, sessCfg.PurgeInterval, sessCfg.MaxAge, log)

	log.Info("app.ready",
		"key_mode", string(authCfg.KeyMode),
		"registration_open", len(authCfg.TANDigests) > 0,
		"db", a.dbPool != nil,
		"redis", a.rdb != nil,
	)
	return a, nil
}

// identifyPrincipal binds a WebSocket to the session resolved by RequireLogin.
func identifyPrincipal(r *http.Request) (string, string, bool) {
	p, ok := authn.PrincipalFrom(r.Context())
	if !ok || p.IdentityKey == "" || p.SID == "" {
		return "", "", false
	}
	return p.IdentityKey, p.SID, true
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestID(WithRequestLogging(WithSecurityHeaders(mux), a.log))
}

// Run serves HTTP and sweeps expired sessions until ctx is cancelled or the
// server fails, then shuts down and releases resources.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		a.sweeper.Run(sweepCtx)
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	stopSweep()
	<-swept
	a.close()

	a.log.Info("server.stopped")
	return runErr
}

// close releases stores in reverse construction order. Safe on a partially
// built App.
func (a *App) close() {
	if a.conns != nil {
		// Also closes the shared Redis client.
		if err := a.conns.Close(); err != nil {
			a.log.Error("websession.close.fail", "err", err)
		}
	} else if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.ids != nil {
		a.ids.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
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
