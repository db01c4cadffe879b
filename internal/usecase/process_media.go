package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/domain/port"
	"github.com/OvHaozzZ/txt2anything/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OutlineExtractor is what the use case needs from the extractor registry.
type OutlineExtractor interface {
	Extract(ctx context.Context, path string, opts entity.Options) (string, error)
}

type ProcessMediaUseCase struct {
	repo           port.JobRepository
	storage        port.MediaStorage
	extractor      OutlineExtractor
	media          port.MediaProcessor
	publisher      port.StatusPublisher
	dlq            port.DLQPublisher
	notifier       port.FailureNotifier
	logger         *zap.Logger
	tempDir        string
	maxRetry       int
	extractTimeout time.Duration
}

type ProcessMediaConfig struct {
	TempDir        string
	MaxRetries     int
	ExtractTimeout time.Duration
}

func NewProcessMediaUseCase(
	repo port.JobRepository,
	storage port.MediaStorage,
	extractor OutlineExtractor,
	media port.MediaProcessor,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessMediaConfig,
) *ProcessMediaUseCase {
	return &ProcessMediaUseCase{
		repo:           repo,
		storage:        storage,
		extractor:      extractor,
		media:          media,
		publisher:      publisher,
		dlq:            dlq,
		notifier:       notifier,
		logger:         logger,
		tempDir:        cfg.TempDir,
		maxRetry:       cfg.MaxRetries,
		extractTimeout: cfg.ExtractTimeout,
	}
}

func (uc *ProcessMediaUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessMediaUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExtractionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.media_key", msg.MediaKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("media_key", msg.MediaKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.MediaKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.extractionPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.ExtractionsTotal.WithLabelValues("completed").Inc()
	metrics.ExtractionDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessMediaUseCase) extractionPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download the media file from object storage. The original extension is
	// preserved because the registry dispatches on it.
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_media")
	mediaPath := filepath.Join(workDir, "input"+filepath.Ext(msg.MediaKey))
	if err := uc.storage.DownloadMedia(ctx2, msg.MediaKey, mediaPath); err != nil {
		spanDl.End()
		log.Error("failed to download media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_media: "+err.Error(), log)
	}
	spanDl.End()
	metrics.ExtractionDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Run the extraction under its own deadline so a stuck OCR or
	// transcription pass cannot hold a worker forever.
	opts := msg.Options.Apply(entity.DefaultOptions())
	exStart := time.Now()
	ctx3, spanEx := tracer.Start(ctx, "extract_content")
	exCtx, cancel := context.WithTimeout(ctx3, uc.extractTimeout)
	outline, err := uc.extractor.Extract(exCtx, mediaPath, opts)
	cancel()
	if err != nil {
		spanEx.End()
		log.Error("content extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "extract_content: "+err.Error(), log)
	}
	spanEx.End()
	metrics.ExtractionDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	lineCount := countLines(outline)
	metrics.OutlineLinesTotal.Add(float64(lineCount))

	// Media duration is informational on the status message; a probe failure
	// (e.g. for still images) just leaves it at zero.
	var duration float64
	if info, probeErr := uc.media.Probe(ctx, mediaPath); probeErr == nil {
		duration = info.Duration
	}

	// Upload the outline text.
	upStart := time.Now()
	ctx4, spanUp := tracer.Start(ctx, "upload_outline")
	outlineKey := fmt.Sprintf("%s/outline_%s.txt", msg.UserID, job.ID.String())
	reader := strings.NewReader(outline)
	if err := uc.storage.UploadOutline(ctx4, outlineKey, reader, int64(len(outline))); err != nil {
		spanUp.End()
		log.Error("outline upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_outline: "+err.Error(), log)
	}
	spanUp.End()
	metrics.ExtractionDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(outlineKey, lineCount, duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("line_count", lineCount),
		zap.Float64("duration_secs", duration),
		zap.String("outline_key", outlineKey),
	)

	return nil
}

func (uc *ProcessMediaUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessMediaUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.ExtractionsTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.MediaKey, errMsg)
	}

	return nil
}

func (uc *ProcessMediaUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.ExtractionStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		MediaKey:     job.MediaKey,
		OutlineKey:   job.OutlineKey,
		LineCount:    job.LineCount,
		Duration:     job.MediaDuration,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func countLines(s string) int {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
