package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/app"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/database"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// bootstrap loads configuration, the logger and the database
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	appConfig, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.InitLogger(appConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.Info("Configuration loaded", appConfig.LogConfig()...)

	db, err := database.InitDB(&appConfig.DB, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("Database connection established")

	return appConfig, log, db, nil
}

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")

			appConfig, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			if migrate {
				if err := database.MigrateModels(db, model.All()...); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
				log.Info("Database migrated")
			}

			// Initialize Prometheus metrics
			prometheus.InitMetrics(appConfig)
			log.Info("Prometheus metrics initialized", zap.String("metrics_prefix", appConfig.Metrics.Prefix))

			server, err := app.New(appConfig, db, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := server.Close(); err != nil {
					log.Warn("Failed to close event publisher", zap.Error(err))
				}
			}()
			prometheus.RegisterOnlineGauge(server.Tracker.OnlineCount)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("Starting arrienda",
				zap.String("environment", appConfig.Server.Env),
				zap.String("port", appConfig.Server.Port))
			if err := server.Run(ctx); err != nil {
				return err
			}
			log.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().Bool("migrate", false, "Run AutoMigrate before serving")

	return cmd
}

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := database.MigrateModels(db, model.All()...); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			log.Info("Database migrated", zap.Int("models", len(model.All())))
			return nil
		},
	}
}
