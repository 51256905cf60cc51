package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"worker-pipeline/config"
	"worker-pipeline/constant"
	"worker-pipeline/handler"
	"worker-pipeline/pkg/poller"
	"worker-pipeline/pkg/rabbitmq"
	"worker-pipeline/pkg/storage"
	"worker-pipeline/repository"
	"worker-pipeline/service"
	"worker-pipeline/stage"
)

// RunWorker owns every connection the worker uses: it opens them, runs the claim loop
// and health endpoint until SIGINT/SIGTERM, then stops claiming and closes them.
func RunWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close database")
			return
		}
		zerolog.Ctx(ctx).Info().Msg("database connection closed")
	}()

	repo, err := repository.NewRepo(db, cfg.App.Environment == constant.EnvironmentDevelop.String())
	if err != nil {
		return err
	}

	minioClient, err := config.NewMinIOClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create minio client: %w", err)
	}

	// The broker connection lives until the process context is cancelled, which
	// is after the poller has been drained below.
	brokerCtx, closeBroker := context.WithCancel(context.WithoutCancel(ctx))
	defer closeBroker()
	publisher := rabbitmq.NewNoopPublisher()
	if cfg.Queue.Enabled {
		conn, err := config.NewRabbitMQConn(brokerCtx, cfg.Queue)
		if err != nil {
			return err
		}
		if publisher, err = rabbitmq.NewPublisher(brokerCtx, conn, cfg.Queue); err != nil {
			return err
		}
	}

	executor := service.NewService(repo, storage.NewMinIOGateway(minioClient), stage.NewRegistry(), publisher, cfg.Storage)
	claimLoop := poller.New(repo, executor, cfg.Worker)

	r := gin.New()
	r.Use(gin.Recovery())
	handler.AddHealth(r, claimLoop)

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("addr", srv.Addr).Msg("start health server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("health server stopped")
		}
	}()

	if err := claimLoop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zerolog.Ctx(ctx).Error().Err(err).Msg("claim loop stopped unexpectedly")
	}

	zerolog.Ctx(ctx).Info().Int64("active_jobs", claimLoop.Active()).Msg("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Worker.ShutdownTimeout)
	defer cancel()
	if err := claimLoop.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("in-flight jobs did not finish before shutdown timeout")
	}
	httpCtx, cancelHttp := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelHttp()
	if err := srv.Shutdown(httpCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to shut down health server")
	}

	zerolog.Ctx(ctx).Info().Msg("worker shutdown")
	return nil
}

func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker-pipeline").Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
