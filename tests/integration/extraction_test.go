package integration

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/extractor"
	"github.com/OvHaozzZ/txt2anything/internal/infra/email"
	"github.com/OvHaozzZ/txt2anything/internal/infra/ffmpeg"
	miniostorage "github.com/OvHaozzZ/txt2anything/internal/infra/minio"
	"github.com/OvHaozzZ/txt2anything/internal/infra/postgres"
	"github.com/OvHaozzZ/txt2anything/internal/infra/rabbitmq"
	"github.com/OvHaozzZ/txt2anything/internal/infra/tesseract"
	"github.com/OvHaozzZ/txt2anything/internal/infra/whisper"
	"github.com/OvHaozzZ/txt2anything/internal/usecase"
	"github.com/OvHaozzZ/txt2anything/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type stack struct {
	pgConnStr     string
	rmqURL        string
	minioEndpoint string
	storage       *miniostorage.Storage
	pool          *pgxpool.Pool
}

func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		MediaBucket:   "media",
		OutlineBucket: "outlines",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &stack{
		pgConnStr:     pgConnStr,
		rmqURL:        rmqURL,
		minioEndpoint: minioEndpoint,
		storage:       storage,
		pool:          pool,
	}
}

func startWorker(t *testing.T, ctx context.Context, s *stack, rmqConn *amqp.Connection) {
	t.Helper()

	log, _ := logger.New("debug")

	pub, err := rabbitmq.NewPublisher(rmqConn, "txt2anything.extract")
	require.NoError(t, err)
	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "extract.request.dlq")

	media := ffmpeg.NewProcessor("ffmpeg", t.TempDir(), time.Minute, log)
	ocr := tesseract.NewEngine("tesseract", "eng", time.Minute, log)
	speech := whisper.NewEngine("whisper-cli", t.TempDir(), t.TempDir(), time.Minute, log)

	registry := extractor.NewRegistry(log)
	registry.Register("image", extractor.NewImage(ocr, log))
	registry.Register("video", extractor.NewVideo(media, ocr, speech, log))

	repo := postgres.NewJobRepository(s.pool)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewProcessMediaUseCase(
		repo, s.storage, registry, media,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:        t.TempDir(),
			MaxRetries:     3,
			ExtractTimeout: 2 * time.Minute,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         s.rmqURL,
		Queue:       "extract.request",
		Exchange:    "txt2anything.extract",
		DLQ:         "extract.request.dlq",
		StatusQueue: "extract.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give the consumer time to bind its queues.
	time.Sleep(500 * time.Millisecond)
}

func writeTestPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.White)
		}
	}
	path := filepath.Join(t.TempDir(), "input.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestExtractImageEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract binary not found on PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	// Upload the test image.
	imagePath := writeTestPNG(t)
	minioClient, err := miniogo.New(s.minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	mediaKey := "testuser/input.png"
	_, err = minioClient.FPutObject(ctx, "media", mediaKey, imagePath, miniogo.PutObjectOptions{
		ContentType: "image/png",
	})
	require.NoError(t, err)

	rmqConn, err := amqp.Dial(s.rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	startWorker(t, ctx, s, rmqConn)

	// Publish an extraction request with the speech pass off.
	jobID := uuid.New()
	imageInfo, _ := os.Stat(imagePath)
	noSpeech := false
	reqMsg := entity.ExtractionRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		MediaKey:  mediaKey,
		FileSize:  imageInfo.Size(),
		UserEmail: "test@test.local",
		Options:   &entity.OptionsPayload{EnableSpeech: &noSpeech},
	}
	msgBody, err := json.Marshal(reqMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"txt2anything.extract",
		"extract.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for the status message.
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("extract.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.ExtractionStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &statusMsg))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Greater(t, statusMsg.LineCount, 0)
	assert.NotEmpty(t, statusMsg.OutlineKey)

	// The uploaded outline must start with the title derived from the file
	// name. A blank image carries a placeholder body, which is still a
	// successful extraction.
	outlineObj, err := minioClient.GetObject(ctx, "outlines", statusMsg.OutlineKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	outlineBytes, err := io.ReadAll(outlineObj)
	require.NoError(t, err)
	outline := string(outlineBytes)
	assert.True(t, strings.HasPrefix(outline, "input"), "outline should start with the title line, got: %q", outline)

	// Verify the job record.
	var dbStatus string
	var dbLineCount int
	err = s.pool.QueryRow(ctx,
		"SELECT status, line_count FROM extraction_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbLineCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, statusMsg.LineCount, dbLineCount)
}

func TestExtractMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	rmqConn, err := amqp.Dial(s.rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	startWorker(t, ctx, s, rmqConn)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"txt2anything.extract",
		"extract.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("extract.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should land in the DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}
