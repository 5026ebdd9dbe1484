package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/claims"
	"polisure.org/internal/config"
	"polisure.org/internal/docs"
	"polisure.org/internal/engine"
	"polisure.org/internal/httpapi"
	"polisure.org/internal/ledger"
	"polisure.org/internal/obs"
	"polisure.org/internal/policy"
	"polisure.org/internal/report"
	"polisure.org/internal/scheduler"
	"polisure.org/internal/store/memstore"
	"polisure.org/internal/store/pg"
	"polisure.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

// storeBundle is the set of views both backends expose.
type storeBundle interface {
	Claims() claims.Store
	Accounts() account.Store
	Ledger() ledger.Service
	Policies() policy.Catalog
	Engine() engine.Store
	Reports() report.Source
}

func main() {
	cfg := config.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store storeBundle
		db    *sql.DB
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		db = pgStore.DB()
		obs.Info("using postgres store", nil)
	} else {
		store = memstore.New()
		obs.Info("using in-memory store (no POLISURE_PG_DSN set)", nil)
	}

	accounts := account.NewService(store.Accounts(), store.Policies())
	claimSvc := claims.NewService(store.Claims(), store.Accounts())
	reports := report.NewService(store.Reports(), report.NewClient(cfg.ReportBaseURL))

	events := stream.New()
	eng := engine.New(store.Engine(), engine.WithStream(events))

	sched := scheduler.New()
	sched.Add("promote", cfg.PromoteInterval, func(ctx context.Context) error {
		_, err := eng.PromoteOpenClaims(ctx)
		return err
	})
	sched.Add("evaluate", cfg.EvaluateInterval, func(ctx context.Context) error {
		_, err := eng.EvaluateClaims(ctx)
		return err
	})

	api := httpapi.New(httpapi.Options{
		Claims:        claimSvc,
		Accounts:      accounts,
		Ledger:        store.Ledger(),
		Policies:      store.Policies(),
		Reports:       reports,
		Docs:          docs.NewService(cfg.DocumentsDir),
		Stream:        events,
		ReadyProbe:    httpapi.ReadyProbe{DB: db},
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	obs.Info("starting polisure-api", map[string]any{
		"version": version,
		"addr":    cfg.HTTPAddr,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.Info("shutting down", nil)
	cancel()
	sched.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	obs.Info("stopped", nil)
}
