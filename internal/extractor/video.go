package extractor

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/domain/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// audioSampleRate is what the speech engine expects: mono 16 kHz PCM.
	audioSampleRate = 16000

	// minOCRTextRunes filters out fragments too short to carry meaning.
	minOCRTextRunes = 2
)

// Video coordinates the two content sources of a video file: on-screen text
// sampled from frames and speech transcribed from the audio track. The two
// passes run as a fork-join pair when concurrent mode is requested; their
// results are fused into one chronological timeline.
type Video struct {
	media  port.MediaProcessor
	ocr    port.OCREngine
	speech port.SpeechEngine
	logger *zap.Logger
}

func NewVideo(media port.MediaProcessor, ocr port.OCREngine, speech port.SpeechEngine, logger *zap.Logger) *Video {
	return &Video{media: media, ocr: ocr, speech: speech, logger: logger}
}

func (v *Video) Formats() []string {
	return []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".wmv"}
}

// Extract runs the enabled passes and renders the merged timeline. Failures
// inside one pass degrade that pass to empty and never abort its sibling; the
// only fatal condition is the decoder being absent, checked before any work
// begins. A video with nothing extractable yields a marked placeholder line,
// never an error.
func (v *Video) Extract(ctx context.Context, path string, opts entity.Options) (string, error) {
	opts = opts.Normalize()

	if err := v.media.Check(ctx); err != nil {
		return "", err
	}

	var ocrItems, speechItems []entity.ContentItem

	if opts.EnableOCR && opts.EnableSpeech && opts.Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ocrItems = v.ocrPass(gctx, path, opts)
			return nil
		})
		g.Go(func() error {
			speechItems = v.speechPass(gctx, path, opts)
			return nil
		})
		_ = g.Wait()
	} else {
		if opts.EnableOCR {
			ocrItems = v.ocrPass(ctx, path, opts)
		}
		if opts.EnableSpeech {
			speechItems = v.speechPass(ctx, path, opts)
		}
	}

	timeline := mergeTimeline(ocrItems, speechItems)
	v.logger.Info("video extracted",
		zap.String("path", path),
		zap.Int("ocr_items", len(ocrItems)),
		zap.Int("speech_items", len(speechItems)),
	)
	return renderTimeline(timeline, titleFor(path, opts.Title)), nil
}

// ocrPass samples frames and recognizes on-screen text. A text string is kept
// only the first time it is seen across the whole video, which suppresses
// watermarks and UI chrome repeated on every frame. Sampled frames are always
// cleaned up, even when recognition fails part-way.
func (v *Video) ocrPass(ctx context.Context, path string, opts entity.Options) []entity.ContentItem {
	frames, err := v.media.ExtractFrames(ctx, path, opts.FrameInterval, opts.MaxFrames)
	if err != nil {
		v.logger.Warn("frame sampling failed, skipping ocr pass", zap.Error(err))
		return nil
	}
	defer v.media.CleanupFrames(frames)

	seen := make(map[string]struct{})
	var items []entity.ContentItem

	for _, frame := range frames {
		blocks, err := v.ocr.RecognizeFile(ctx, frame.Path)
		if err != nil {
			v.logger.Warn("frame recognition failed, skipping frame",
				zap.Float64("timestamp", frame.Timestamp),
				zap.Error(err),
			)
			continue
		}
		for _, blk := range blocks {
			text := strings.TrimSpace(blk.Text)
			if utf8.RuneCountInString(text) <= minOCRTextRunes {
				continue
			}
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			items = append(items, entity.ContentItem{
				Timestamp: frame.Timestamp,
				Text:      text,
				Source:    entity.SourceOCR,
			})
		}
	}
	return items
}

// speechPass extracts and transcribes the audio track. Probing a video with
// no audio short-circuits before any audio file is created; any later failure
// degrades to an empty result since the OCR content is still valuable on its
// own. The extracted audio file is removed regardless of the transcription
// outcome.
func (v *Video) speechPass(ctx context.Context, path string, opts entity.Options) []entity.ContentItem {
	info, err := v.media.Probe(ctx, path)
	if err != nil {
		v.logger.Warn("probe failed, skipping speech pass", zap.Error(err))
		return nil
	}
	if !info.HasAudio {
		v.logger.Debug("no audio track, skipping speech pass", zap.String("path", path))
		return nil
	}

	audioPath, err := v.media.ExtractAudio(ctx, path, audioSampleRate)
	if err != nil {
		v.logger.Warn("audio extraction failed, skipping speech pass", zap.Error(err))
		return nil
	}
	defer os.Remove(audioPath)

	tr, err := v.speech.Transcribe(ctx, audioPath, opts.SpeechModel, opts.Language)
	if err != nil {
		v.logger.Warn("transcription failed, skipping speech pass", zap.Error(err))
		return nil
	}

	var items []entity.ContentItem
	for _, seg := range tr.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		items = append(items, entity.ContentItem{
			Timestamp: seg.Start,
			Text:      text,
			Source:    entity.SourceSpeech,
		})
	}
	return items
}
