package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/extractor"
	"github.com/OvHaozzZ/txt2anything/internal/infra/config"
	"github.com/OvHaozzZ/txt2anything/internal/infra/email"
	"github.com/OvHaozzZ/txt2anything/internal/infra/ffmpeg"
	"github.com/OvHaozzZ/txt2anything/internal/infra/metrics"
	miniostorage "github.com/OvHaozzZ/txt2anything/internal/infra/minio"
	"github.com/OvHaozzZ/txt2anything/internal/infra/postgres"
	"github.com/OvHaozzZ/txt2anything/internal/infra/rabbitmq"
	"github.com/OvHaozzZ/txt2anything/internal/infra/tesseract"
	"github.com/OvHaozzZ/txt2anything/internal/infra/tracing"
	"github.com/OvHaozzZ/txt2anything/internal/infra/whisper"
	"github.com/OvHaozzZ/txt2anything/internal/usecase"
	"github.com/OvHaozzZ/txt2anything/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting txt2anything extraction worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		MediaBucket:   cfg.MinIOMediaBucket,
		OutlineBucket: cfg.MinIOOutlineBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// External tool adapters
	media := ffmpeg.NewProcessor(cfg.FFmpegPath, cfg.TempDir,
		time.Duration(cfg.FFmpegTimeoutMs)*time.Millisecond, log)
	ocr := tesseract.NewEngine(cfg.TesseractPath, cfg.TesseractLanguages,
		time.Duration(cfg.TesseractTimeoutMs)*time.Millisecond, log)
	speech := whisper.NewEngine(cfg.WhisperPath, cfg.WhisperModelDir, cfg.TempDir,
		time.Duration(cfg.WhisperTimeoutMs)*time.Millisecond, log)

	// Extractor registry
	registry := extractor.NewRegistry(log)
	registry.Register("image", extractor.NewImage(ocr, log))
	registry.Register("video", extractor.NewVideo(media, ocr, speech, log))

	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewProcessMediaUseCase(
		repo, storage, registry, media,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:        cfg.TempDir,
			MaxRetries:     cfg.MaxRetries,
			ExtractTimeout: time.Duration(cfg.ExtractTimeoutMs) * time.Millisecond,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("txt2anything extraction worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("txt2anything extraction worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
