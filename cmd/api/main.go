// Command api runs the Bugtrail HTTP service: authentication, sessions,
// permissions, and the issue workflow behind a single REST surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bugtrail.org/internal/auth"
	"bugtrail.org/internal/config"
	"bugtrail.org/internal/httpapi"
	"bugtrail.org/internal/obs"
	"bugtrail.org/internal/perm"
	"bugtrail.org/internal/tracker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		fatal("load config", err)
	}

	privatePEM, publicPEM, err := cfg.ReadKeyPair()
	if err != nil {
		fatal("load signing keys", err)
	}
	codec, err := auth.NewCodec(privatePEM, publicPEM,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		fatal("build token codec", err)
	}

	var (
		authStore    auth.Store
		trackerStore tracker.Store
		db           *sql.DB
	)
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			fatal("open database", err)
		}
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			fatal("ping database", err)
		}
		cancel()

		authStore = auth.NewPGStore(db)
		trackerStore = tracker.NewPGStore(db)
	} else {
		obs.LogEvent("warn", "no database configured, using in-memory stores", nil)
		authStore = auth.NewMemStore()
		trackerStore = tracker.NewMemStore()
	}

	authSvc, err := auth.NewService(authStore, codec,
		auth.WithMaxLoginAttempts(cfg.MaxLoginAttempts),
		auth.WithLockoutDuration(cfg.LockoutDuration),
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		fatal("build auth service", err)
	}

	engine := perm.NewEngine(tracker.NewFinder(trackerStore))
	trackerSvc := tracker.NewService(trackerStore, engine)

	// Revocation entries past their natural expiry can never validate
	// again; sweep them periodically so the ledger stays small.
	purgeCtx, stopPurge := context.WithCancel(context.Background())
	defer stopPurge()
	go purgeRevocations(purgeCtx, authStore.Revocations(), time.Hour)

	api := httpapi.New(httpapi.Options{
		Auth:       authSvc,
		Tracker:    trackerSvc,
		Probe:      httpapi.ReadyProbe{DB: db},
		Version:    version,
		LoginBurst: cfg.LoginRateBurst,
		LoginRate:  cfg.LoginRatePerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogEvent("info", "server listening", map[string]any{
			"addr":    cfg.Addr,
			"env":     cfg.Environment,
			"version": version,
		})
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		obs.LogEvent("info", "shutting down", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("serve", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.LogEvent("error", "graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

func purgeRevocations(ctx context.Context, ledger auth.RevocationStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				obs.LogEvent("error", "revocation purge failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				obs.LogEvent("info", "revocation ledger purged", map[string]any{"removed": n})
			}
		}
	}
}

func fatal(msg string, err error) {
	obs.LogEvent("error", msg, map[string]any{"error": err.Error()})
	os.Exit(1)
}
