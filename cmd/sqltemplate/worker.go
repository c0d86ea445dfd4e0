package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/store"
	"github.com/aescanero/dago-node-sqltemplate/internal/worker"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume render requests from Redis Streams",
		Long:  `Runs the stream worker and its health server. Configuration comes from the environment.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker()
		},
	}
}

func (a *app) runWorker() error {
	cfg, logger := a.cfg, a.logger

	logger.Info("starting sqltemplate node",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	svc, err := a.newService(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	states := store.NewRedisStateStore(redisClient, logger)
	w := worker.NewWorker(cfg, redisClient, svc, states, logger)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	healthServer := worker.NewHealthServer(cfg.HealthPort, redisClient, svc, prometheus.DefaultGatherer, logger)
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("sqltemplate worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	logger.Info("worker stopped gracefully")
	return nil
}
