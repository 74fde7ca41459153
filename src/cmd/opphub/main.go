package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/casapps/opphub/src/internal/cache"
	"github.com/casapps/opphub/src/internal/config"
	"github.com/casapps/opphub/src/internal/database"
	"github.com/casapps/opphub/src/internal/search"
	"github.com/casapps/opphub/src/internal/server"
	"github.com/casapps/opphub/src/pkg/utils"
)

var (
	Version = "dev"
)

func main() {
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v":
			fmt.Printf("OppHub v%s\n", Version)
			os.Exit(0)
		}
	}

	logger := utils.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	engine, err := search.NewEngine(cfg.GetString("search.index_path"), logger)
	if err != nil {
		logger.Error("failed to open search index", "error", err)
		os.Exit(1)
	}

	cacheManager := cache.NewManager(cfg)

	var rdb *redis.Client
	if cfg.GetBool("redis.enabled") {
		opts, err := redis.ParseURL(cfg.GetString("redis.url"))
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
	}

	srv := server.New(cfg, db, engine, cacheManager, rdb, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address := fmt.Sprintf("%s:%d", cfg.GetString("server.host"), cfg.GetInt("server.port"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx, address)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped cleanly")
}
