package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loom/api/internal/app"
	"loom/api/internal/config"
	"loom/api/internal/media"
	"loom/api/internal/session"
	"loom/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	var uploader *media.Uploader
	if strings.TrimSpace(cfg.MediaEndpoint) != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Endpoint:      cfg.MediaEndpoint,
			AccessKey:     cfg.MediaAccessKey,
			SecretKey:     cfg.MediaSecretKey,
			Bucket:        cfg.MediaBucket,
			UseSSL:        cfg.MediaUseSSL,
			PublicBaseURL: cfg.MediaBaseURL,
		})
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
	} else {
		log.Printf("Object storage not configured; image uploads disabled")
	}

	var service *app.Service
	if uploader != nil {
		service = app.New(cfg, dataStore, sessions, uploader)
	} else {
		service = app.New(cfg, dataStore, sessions, nil)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Loom API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
