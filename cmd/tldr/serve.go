package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/tldr-app/uploader/internal/api"
	"github.com/tldr-app/uploader/internal/cache"
	"github.com/tldr-app/uploader/internal/config"
	"github.com/tldr-app/uploader/internal/logging"
	"github.com/tldr-app/uploader/internal/models"
	"github.com/tldr-app/uploader/internal/session"
	"github.com/tldr-app/uploader/internal/storage"
	"github.com/tldr-app/uploader/internal/summarizer"
	"github.com/tldr-app/uploader/internal/uploader"
	"github.com/tldr-app/uploader/internal/web"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the uploader web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(cmd.Context(), configPath)
	},
}

func init() {
	serveCmd.Flags().String("config", "./tldr.yaml", "config file (created with defaults if missing)")
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if n, err := fileStore.PurgeOrphans(); err != nil {
		logger.Warn("failed to remove stale uploads", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed stale uploads", zap.Int("count", n))
	}

	var (
		summ    summarizer.Summarizer
		history api.SummaryHistory
	)
	client := summarizer.NewClient(summarizer.Options{
		Endpoint:   cfg.Summarizer.Endpoint,
		FieldName:  cfg.Summarizer.FieldName,
		MaxRetries: cfg.Summarizer.MaxRetries,
		UserAgent:  cfg.Summarizer.UserAgent,
	}, fileStore, logger)
	summ = client

	if cfg.Cache.Enabled {
		summaryCache, err := cache.Open(cfg.Cache.Path, cache.Options{
			MemoryLimit: cfg.Cache.MemoryLimit,
			Threads:     cfg.Cache.Threads,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open summary cache: %w", err)
		}
		defer summaryCache.Close()
		summ = summarizer.NewCached(client, summaryCache, logger)
		history = summaryCache
	}

	release := func(file *models.SelectedFile) {
		if err := fileStore.Delete(file.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("failed to remove released file", zap.String("id", file.ID), zap.Error(err))
		}
	}
	sessionMgr := session.NewManager(func(id string) *uploader.View {
		return uploader.NewView(id, uploader.Options{
			Summarizer: summ,
			Logger:     logger.Named("uploader"),
			Timeout:    cfg.SummarizerTimeout(),
			Release:    release,
		})
	}, cfg.Session.MaxSessions, logger)

	go sessionMgr.RunCleanup(ctx, cfg.CleanupInterval(), cfg.SessionTimeout())

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	api.SetupMiddleware(e, cfg.Server, logger.Named("http"))
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:        fileStore,
		Sessions:     sessionMgr,
		History:      history,
		BaseContext:  ctx,
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.CookieSecure,
		Version:      Version,
		Logger:       logger,
	}))
	if err := web.RegisterStaticRoutes(e); err != nil {
		return fmt.Errorf("failed to register static routes: %w", err)
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg, client.Endpoint())
	logger.Info("server starting",
		zap.String("addr", cfg.GetServerAddr()),
		zap.String("endpoint", client.Endpoint()),
		zap.Bool("cache", cfg.Cache.Enabled))

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	// ctx is cancelled by now, so in-flight submits unwind quickly.
	stop()
	sessionMgr.Close()
	return nil
}

func printBanner(configPath string, cfg *config.AppConfig, endpoint string) {
	cacheDesc := "disabled"
	if cfg.Cache.Enabled {
		cacheDesc = cfg.Cache.Path
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           tl;dr PDF Uploader                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Endpoint:  %-46s║\n", endpoint)
	fmt.Printf("║  Cache:     %-46s║\n", cacheDesc)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
