package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/config"
	"github.com/aman-churiwal/chat-admission/internal/server"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var migrate bool

	flagSet := pflag.NewFlagSet("admissiond", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "config.json", "path to the JSON config file (optional)")
	flagSet.BoolVar(&migrate, "migrate", false, "create or update the database schema before serving")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	postgres, err := storage.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer postgres.Close()
	logger.Info("connected to postgres")

	if migrate {
		if err := postgres.AutoMigrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema migrated")
	}

	redis, err := storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redis.Close()
	logger.Info("connected to redis", "addr", cfg.Redis.GetRedisAddr())

	srv, err := server.New(cfg, redis, postgres, logger, server.Options{})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupAudit(ctx, srv, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Run(":" + cfg.Server.Port)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// Prunes the rejection audit once a day
func cleanupAudit(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := srv.CleanupAudit(ctx)
			if err != nil {
				logger.Error("audit cleanup failed", "error", err)
				continue
			}
			logger.Info("audit cleanup finished", "deleted", deleted)
		}
	}
}
