package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HarborC/kalibrlib/internal/api"
	"github.com/HarborC/kalibrlib/internal/config"
	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/session"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/labstack/echo/v4"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default: kalibr.yaml next to the executable)")
	flag.Parse()

	if *configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), "kalibr.yaml")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.Advanced.LogLevel)
	logger := logging.L()

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatalf("Failed to create directories: %v", err)
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	exportStore, err := session.NewExportStore(cfg.Storage.ExportDirectory, export.StoreOptions{
		Threads:   cfg.Export.DuckDBThreads,
		BatchSize: cfg.Export.BatchSize,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize export store: %v", err)
	}
	// The store index is in memory, so exports from an earlier run are orphans.
	if n := exportStore.CleanupOrphaned(nil); n > 0 {
		logger.Infof("Removed %d stale exports", n)
	}

	convertOpts, err := cfg.ConvertOptions()
	if err != nil {
		logger.Fatalf("Invalid dataset settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionMgr := session.NewManager(cfg.Processing.MaxSessions)
	defer sessionMgr.CloseAll()
	sessionMgr.StartCleanupRoutine(ctx,
		time.Duration(cfg.Processing.CleanupIntervalMinutes)*time.Minute,
		time.Duration(cfg.Processing.SessionTimeoutMinutes)*time.Minute)

	jobMgr := jobs.NewManager(cfg.WorkDir(), fileStore, convertOpts)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jobMgr.CleanupOldJobs(24 * time.Hour)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	api.SetupMiddleware(e, cfg)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:       fileStore,
		Sessions:    sessionMgr,
		Exports:     exportStore,
		Jobs:        jobMgr,
		JobContext:  ctx,
		MaxPageSize: cfg.Processing.MaxPageSize,
		Version:     Version,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Kalibr Dataset Server                           ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	jobMgr.Wait()
}
