package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Config struct {
	Addr            string        `env:"ADDR" envDefault:":4000"`
	DataDir         string        `env:"DATA_DIR" envDefault:"./data"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	MetaSourcesPath string        `env:"META_SOURCES_PATH"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	bus := NewEventBus()
	var store *Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("db open", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.PingContext(ctx); err != nil {
			cancel()
			log.Error("db ping", "err", err)
			os.Exit(1)
		}
		pg := newPGBackend(db)
		if err := pg.migrate(ctx); err != nil {
			cancel()
			log.Error("migrate", "err", err)
			os.Exit(1)
		}
		cancel()
		store = NewStore(pg, bus, log)
	} else {
		store = NewStore(newFileBackend(cfg.DataDir), bus, log)
	}
	if err := store.Load(); err != nil {
		log.Error("load document", "err", err)
		os.Exit(1)
	}

	sources, err := loadSources(cfg.MetaSourcesPath, log)
	if err != nil {
		log.Error("load meta sources", "err", err)
		os.Exit(1)
	}
	enricher := NewEnricher(store, sources, cfg.FetchTimeout, log)

	mux := http.NewServeMux()
	api := newAPI(store, bus, enricher, log)
	api.routes(mux)

	// No WriteTimeout: the per-board event stream stays open indefinitely.
	srv := &http.Server{Addr: cfg.Addr, Handler: withCORS(withLogging(log, mux)),
		ReadTimeout: 15 * time.Second, ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second}

	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			log.Error("listen", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	log.Info("shutting down")
	ctxSh, cancelSh := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSh()
	if err := srv.Shutdown(ctxSh); err != nil {
		log.Error("shutdown", "err", err)
	}
}
