package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amplimindcc/backend-sub000/internal/archive"
	"github.com/amplimindcc/backend-sub000/internal/config"
	"github.com/amplimindcc/backend-sub000/internal/gitclient"
	"github.com/amplimindcc/backend-sub000/internal/publisher"
	"github.com/amplimindcc/backend-sub000/internal/ratelimit"
	"github.com/amplimindcc/backend-sub000/internal/repository"
	"github.com/amplimindcc/backend-sub000/internal/server/httpapi"
	"github.com/amplimindcc/backend-sub000/internal/service"
	"github.com/amplimindcc/backend-sub000/internal/storage"
	"github.com/amplimindcc/backend-sub000/internal/token"
	"github.com/amplimindcc/backend-sub000/pkg/db"
	"github.com/amplimindcc/backend-sub000/pkg/kafka"
	"github.com/amplimindcc/backend-sub000/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Debug)
	defer log.Sync()

	pg, err := db.NewPostgres(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	userRepo := repository.NewUserRepository(pg.DB())
	submissionRepo := repository.NewSubmissionRepository(pg.DB())
	tokenRecordRepo := repository.NewTokenRecordRepository(pg.DB())

	key, err := cfg.AEADKey()
	if err != nil {
		log.Fatalf("Failed to load token key: %v", err)
	}
	tokenService, err := token.NewService(key, log,
		token.WithSweepInterval(cfg.TokenSweepInterval))
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	guard := archive.NewGuard(archive.DefaultMaxBytes)

	git := gitclient.New(cfg.GitBaseURL, cfg.GitToken, cfg.GitTimeout)
	pub := publisher.New(git, publisher.Config{
		RepoOwner:    cfg.GitRepoOwner,
		Branch:       cfg.GitBranch,
		Concurrency:  cfg.GitConcurrency,
		MaxAttempts:  cfg.GitMaxAttempts,
		RetryDelay:   cfg.GitRetryDelay,
		WorkflowFile: cfg.GitWorkflowFile,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archiveStore service.ArchiveStore
	if cfg.S3Endpoint != "" {
		s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		archiveStore, err = storage.NewArchiveStore(ctx, s3Client, cfg.S3Bucket)
		if err != nil {
			log.Fatalf("Failed to create archive store: %v", err)
		}
	}

	var events service.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
		events = producer
	}

	challengeService := service.NewChallengeService(
		userRepo,
		submissionRepo,
		tokenRecordRepo,
		tokenService,
		guard,
		pub,
		archiveStore,
		events,
		service.Config{
			InviteTTL:         cfg.InviteTTL,
			ResetTTL:          cfg.ResetTTL,
			ChallengeDuration: cfg.ChallengeDuration,
		},
		log,
	)

	// A Redis-backed window is shared across instances; the in-process
	// limiter serves single-instance deployments.
	var admitter httpapi.Admitter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		admitter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateWindow)
	} else {
		limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
		go limiter.StartPruner(ctx, cfg.RatePruneEvery)
		admitter = limiter
	}

	go tokenService.StartSweeper(ctx)

	handler := httpapi.NewHandler(challengeService, log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler.Router(admitter),
	}

	go func() {
		log.Infof("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to shut down cleanly: %v", err)
	}
	log.Info("Server stopped")
}
