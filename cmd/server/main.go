// Package main is the entry point for the ttbox backend server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CageChen/ttbox/internal/account"
	"github.com/CageChen/ttbox/internal/command"
	"github.com/CageChen/ttbox/internal/config"
	mfs "github.com/CageChen/ttbox/internal/fs"
	"github.com/CageChen/ttbox/internal/handler"
	"github.com/CageChen/ttbox/internal/markdown"
	"github.com/CageChen/ttbox/internal/textfile"
	"github.com/CageChen/ttbox/internal/updater"
	"github.com/CageChen/ttbox/internal/watcher"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// startupCheckDelay gives clients time to connect before the first update check.
const startupCheckDelay = 3 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("ttbox %s", version)
	log.Printf("Config file: %s", cfg.GetConfigFilePath())
	if cfg.Root != "" {
		log.Printf("File commands restricted to: %s", cfg.Root)
	}

	fsys := mfs.NewLocalFS(cfg.Root)
	up, err := updater.New(cfg.Update.Endpoint, version)
	if err != nil {
		log.Fatalf("Failed to create updater: %v", err)
	}

	token := uuid.NewString()
	tokenPath := config.GetTokenPath()
	if err := writeToken(tokenPath, token); err != nil {
		log.Fatalf("Failed to write API token: %v", err)
	}
	defer func() { _ = os.Remove(tokenPath) }()
	log.Printf("API token written to: %s", tokenPath)

	wsHandler := handler.NewWSHandler(cfg.IsAllowedOrigin)
	services := command.Services{
		Config:   cfg,
		FS:       fsys,
		Files:    textfile.NewAccessor(fsys),
		Accounts: account.NewStore(cfg.SessionTTL),
		Updater:  up,
		Notes:    markdown.NewParser(),
		Events:   wsHandler,
	}

	// Setup file watcher if enabled
	if cfg.Watch {
		w, err := watcher.New(cfg)
		if err != nil {
			log.Printf("Warning: failed to create file watcher: %v", err)
		} else {
			w.OnChange(wsHandler.OnFileChange)
			if err := w.Start(); err != nil {
				log.Printf("Warning: failed to start file watcher: %v", err)
			}
			defer func() { _ = w.Stop() }()
			services.Watcher = w
			log.Printf("File watcher enabled")
		}
	}

	registry := command.New(services)
	invokeHandler := handler.NewInvokeHandler(registry)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(invokeHandler, wsHandler, handler.Security{
		Token:       token,
		AllowOrigin: cfg.IsAllowedOrigin,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Update.Endpoint != "" && cfg.Update.CheckOnStart {
		go checkOnStart(ctx, up, wsHandler)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting at: http://%s", cfg.Addr())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("Server stopped")
}

// checkOnStart looks for an update shortly after startup and announces it to clients.
func checkOnStart(ctx context.Context, up *updater.Service, events command.Broadcaster) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupCheckDelay):
	}

	u, err := up.Check(ctx)
	if err != nil {
		log.Printf("Warning: update check failed: %v", err)
		return
	}
	if u == nil {
		return
	}
	log.Printf("Update available: %s -> %s", u.CurrentVersion, u.Version)
	events.Broadcast(command.MsgUpdateAvailable, u)
}

// writeToken stores the per-launch API token where the frontend can read it.
// The file is readable by the current user only.
func writeToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}
