package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scribelabs/scribe-live/internal/api"
	"github.com/scribelabs/scribe-live/internal/batch"
	"github.com/scribelabs/scribe-live/internal/config"
	"github.com/scribelabs/scribe-live/internal/live"
	"github.com/scribelabs/scribe-live/internal/storage/sqlite"
	"github.com/scribelabs/scribe-live/internal/transcript"
	"github.com/scribelabs/scribe-live/internal/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Scribe Live server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Open SQLite storage
	db, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	transcriptStorage, err := sqlite.NewTranscriptStorage(db.GetDB())
	if err != nil {
		log.Error("Failed to create transcript storage", logger.Error(err))
		os.Exit(1)
	}

	subtitleStorage, err := sqlite.NewSubtitleStorage(db.GetDB())
	if err != nil {
		log.Error("Failed to create subtitle storage", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)

	// Start WebSocket server
	go wsServer.Run()

	// Create transcript assembler
	assembler := transcript.NewAssembler(transcriptStorage, wsServer, log)

	// Create live session manager
	liveManager := live.NewManager(cfg.Audio, cfg.Live, assembler, wsServer, log)

	// Create batch subtitle generator
	generator := batch.NewGenerator(cfg.Batch.APIKey, cfg.Batch.Model, cfg.Batch.Prompt,
		time.Duration(cfg.Batch.TimeoutSeconds)*time.Second, log)

	// Create API router
	router := api.NewRouter(liveManager, assembler, generator, transcriptStorage, subtitleStorage, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop the live session first so pending text is committed
	log.Info("Stopping live session...")
	liveManager.Stop()
	log.Info("Live session stopped.")

	// Shutdown the HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	log.Info("Server fully stopped")
}
