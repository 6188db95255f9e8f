package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/journal/internal/broadcast"
	"github.com/blackmichael/journal/internal/config"
	"github.com/blackmichael/journal/internal/docstore"
	"github.com/blackmichael/journal/internal/domain"
	"github.com/blackmichael/journal/internal/httpserver"
	"github.com/blackmichael/journal/internal/mqtt"
	"github.com/blackmichael/journal/internal/poststore"
	"github.com/blackmichael/journal/internal/session"
	"github.com/blackmichael/journal/internal/sqlite"
	"github.com/blackmichael/journal/internal/upload"
)

// postsDocumentKey is the documents row used by the sqlite storage driver.
const postsDocumentKey = "posts"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("JOURNAL_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Sessions always live in SQLite; the posts document may too.
	repo, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	logger.Info("opened database", "path", cfg.Storage.DatabasePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		doc     domain.DocumentStore
		fileDoc *docstore.FileStore
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		doc = repo.Document(postsDocumentKey)
	default:
		fileDoc = docstore.NewFileStore(cfg.Storage.PostsPath)
		doc = fileDoc
	}

	store := poststore.New(doc, logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load posts: %w", err)
	}

	gate, err := domain.NewGate(cfg.Auth.EditorKey, cfg.Auth.ViewerKey)
	if err != nil {
		return fmt.Errorf("create gate: %w", err)
	}
	sessions, err := session.NewManager(gate, repo, session.Config{
		Secret:       cfg.Auth.SessionSecret,
		RememberFor:  cfg.Sessions.RememberFor,
		IdleTimeout:  cfg.Sessions.IdleTimeout,
		CookieName:   cfg.Sessions.CookieName,
		SecureCookie: cfg.Sessions.SecureCookies,
	}, logger)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	blobs, err := upload.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, cfg.Uploads.MaxBytes, cfg.Uploads.Types, logger)
	if err != nil {
		return fmt.Errorf("create upload store: %w", err)
	}

	hub := broadcast.NewHub(logger)
	listeners := []domain.PostListener{hub}

	if cfg.MQTT.Broker != "" {
		announcer := mqtt.New(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			UseTLS:   cfg.MQTT.UseTLS,
			Logger:   logger,
		})
		// Connect in the background; posts are dropped until the broker is up.
		go func() {
			if err := announcer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("mqtt announcer failed to connect", "error", err)
			}
		}()
		defer announcer.Stop()
		listeners = append(listeners, announcer)
	}

	service := domain.NewJournalService(store, blobs, logger,
		domain.WithPageSize(cfg.PageSize),
		domain.WithMediaMatcher(domain.NewMediaMatcher(cfg.Media.ImageExtensions, cfg.Media.ImageHosts)),
		domain.WithListeners(listeners...),
	)

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Pick up hand edits of the posts document
	if fileDoc != nil && cfg.Storage.WatchPosts {
		go func() {
			err := fileDoc.Watch(ctx, cfg.Storage.WatchDebounce, logger, func(ctx context.Context) {
				if err := store.Reload(ctx); err != nil {
					logger.Error("failed to reload posts", "error", err)
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("post document watcher exited with error", "error", err)
			}
		}()
	}

	// Start background session cleanup
	go sessions.StartCleanupJob(ctx, cfg.Sessions.CleanupInterval)

	// Start the HTTP server
	server := httpserver.NewServer(cfg, service, sessions, hub, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"hostname", cfg.Hostname,
		"storage", cfg.Storage.Driver,
		"posts", store.Len(),
	)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
