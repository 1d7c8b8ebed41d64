package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codesync/internal/api"
	"codesync/internal/auth"
	"codesync/internal/config"
	"codesync/internal/db"
	"codesync/internal/relay"
	"codesync/internal/repository"
	"codesync/internal/telemetry"
)

func main() {
	log.Println("starting codesync relay...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Tracing goes up first so startup itself is traced.
	jaegerShutdown, err := telemetry.InitJaeger("codesync", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("failed to shutdown Jaeger: %v", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	store := repository.NewStore(database.DB)
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret))

	hub := relay.NewHub(store, cfg.PersistWorkers, cfg.PersistQueueSize)
	hub.Start()

	handler := api.NewHandler(hub, verifier, store, store, cfg.AllowedOrigins)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on http://%s", addr)
		log.Printf("  GET  /api/health                  - health + persistence backlog")
		log.Printf("  GET  /api/v1/snippets/{id}/edits  - edit history")
		log.Printf("  WS   /ws?token=...                - collaboration socket")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	// Close sockets first so no new edits reach the pipeline, then
	// drain what is already queued.
	hub.Shutdown()

	log.Println("server shutdown complete")
}
