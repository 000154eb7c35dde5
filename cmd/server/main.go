package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"minewatch/internal/config"
	"minewatch/internal/handler"
	"minewatch/internal/repository/sqlite"
	"minewatch/internal/scanner"
	"minewatch/internal/service"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Minewatch server...")

	// A .env alongside the binary is optional; it can point
	// MINEWATCH_CONFIG at a config file.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgPath != "" {
		log.Printf("Config loaded from %s", cfgPath)
	}
	if *addr != "" {
		cfg.Server.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	cache := &service.Cache{}
	poller := service.NewPoller(repo, cache,
		cfg.Polling.PoolInterval.Duration(),
		cfg.Polling.DeviceInterval.Duration())

	sc := scanner.New(scanner.Config{
		Timeout:   cfg.Scanner.ProbeTimeout.Duration(),
		BatchSize: cfg.Scanner.BatchSize,
	})
	discovery := service.NewDiscovery(repo, sc)
	discovery.SetNmapEnabled(cfg.NmapEnabled())
	discovery.SetDefaultNetwork(cfg.Scanner.Network)

	// Background loops stop on shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	go func() {
		if err := poller.Run(bgCtx); err != nil && bgCtx.Err() == nil {
			log.Printf("Poller stopped: %v", err)
		}
	}()

	if days := cfg.Retention.Days; days > 0 {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				if err := repo.CleanupOldData(bgCtx, days); err != nil && bgCtx.Err() == nil {
					log.Printf("Cleanup: %v", err)
				}
				select {
				case <-bgCtx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	api := handler.New(repo, cache, poller, discovery)
	finalHandler := handler.Chain(api.Routes(),
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
