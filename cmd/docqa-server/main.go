// Package main provides the MCP server entry point for document question answering.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bull/docqa-server/internal/app"
	"github.com/bull/docqa-server/internal/config"
	mcpserver "github.com/bull/docqa-server/internal/mcp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the stdio transport, so logs always go to stderr
	logger := app.NewLogger(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Over stdio the client is local and may upload any file this user can
	// read; over HTTP only files under UPLOAD_ROOT are accepted.
	uploadRoot := cfg.Server.UploadRoot
	if uploadRoot == "" && !cfg.Server.ServerMode {
		uploadRoot = string(filepath.Separator)
	}
	if uploadRoot == "" {
		logger.Warn("UPLOAD_ROOT not set, upload_document is disabled")
	}

	serverCfg := &mcpserver.Config{
		Ingestor:   a.Pipeline,
		Jobs:       a.Jobs,
		Answerer:   a.Service,
		UploadDir:  cfg.Server.UploadDir,
		UploadRoot: uploadRoot,
		Logger:     logger,
	}
	if a.Uploads != nil {
		serverCfg.Uploads = a.Uploads
	}
	server := mcpserver.NewServer(serverCfg)

	handler := http.Handler(mcpserver.NewHealthMux(a.Store))
	if cfg.Server.ServerMode {
		handler = mcpserver.NewMux(server, a.Store, nil)
	}
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	if cfg.Server.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		go func() {
			logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
			errCh <- httpServer.ListenAndServe()
		}()
	} else {
		// Stdio mode: MCP over stdin/stdout, health endpoint in the background
		go func() {
			logger.Info("Starting health server", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Health server error", "error", err)
			}
		}()
		go func() {
			logger.Info("Starting document QA MCP server (stdio mode)")
			errCh <- server.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", serr)
	}
	if serr := a.Jobs.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("Ingestion jobs still running at exit", "error", serr)
	}
	return err
}
