package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/bangunpro/rab-approval/internal/config"
	"github.com/bangunpro/rab-approval/internal/container"
	httpserver "github.com/bangunpro/rab-approval/internal/interfaces/http"
	"github.com/bangunpro/rab-approval/pkg/utils"
)

func main() {
	// Load .env if present; real env vars win
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting RAB approval service", zap.Int("port", cfg.Server.Port))

	app, err := container.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	services := app.Services()
	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		httpserver.Services{
			Approval:     services.Approval,
			Workflow:     services.Workflow,
			Query:        services.Query,
			Notification: services.Notification,
			Report:       services.Report,
			Budget:       services.Budget,
			User:         services.User,
		},
		app.ServiceLogger(),
	)

	// Blocks until the context is cancelled by SIGINT/SIGTERM
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
	}

	if err := app.Close(); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
