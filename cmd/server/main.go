package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/corebank/ledger/internal/config"
	"github.com/corebank/ledger/internal/database"
	"github.com/corebank/ledger/internal/events"
	"github.com/corebank/ledger/internal/handlers"
	"github.com/corebank/ledger/internal/ledger"
	"github.com/corebank/ledger/internal/ledger/pgstore"
	"github.com/corebank/ledger/internal/logging"
	mW "github.com/corebank/ledger/internal/middleware"
)

// @title Ledger Service API
// @version 1.0
// @description Double-entry account and transaction ledger
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Log)

	db, err := database.OpenPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connection established")

	store := pgstore.New(db, pgstore.WithLockTimeout(cfg.Ledger.LockTimeout))

	engineOpts := []ledger.Option{ledger.WithLogger(log)}
	if cfg.Redis.Enabled {
		rdb, err := database.OpenRedis(context.Background(), cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without event feed")
		} else {
			defer rdb.Close()
			log.Info().Msg("redis connection established")
			engineOpts = append(engineOpts,
				ledger.WithPublisher(events.NewRedisPublisher(rdb, cfg.Ledger.EventsKey, log)))
		}
	}

	engine := ledger.NewEngine(store, engineOpts...)
	api := handlers.NewAPI(engine, log)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))

	r.Mount("/api/v1", api.Routes())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
