// Command extract runs a one-shot extraction against a local media file and
// writes the outline to stdout or a file. It uses the same extractors as the
// worker but needs none of the queue, database, or object storage pieces.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/extractor"
	"github.com/OvHaozzZ/txt2anything/internal/infra/ffmpeg"
	"github.com/OvHaozzZ/txt2anything/internal/infra/tesseract"
	"github.com/OvHaozzZ/txt2anything/internal/infra/whisper"
	"github.com/OvHaozzZ/txt2anything/pkg/logger"
)

func main() {
	input := flag.String("input", "", "path to the image or video file (required)")
	output := flag.String("output", "", "write the outline here instead of stdout")
	title := flag.String("title", "", "override the outline title line")
	interval := flag.Float64("interval", entity.DefaultFrameInterval, "seconds between sampled video frames")
	maxFrames := flag.Int("max-frames", entity.DefaultMaxFrames, "cap on sampled video frames")
	noOCR := flag.Bool("no-ocr", false, "skip the on-screen text pass")
	noSpeech := flag.Bool("no-speech", false, "skip the transcription pass")
	model := flag.String("model", entity.DefaultSpeechModel,
		"speech model size ("+strings.Join(entity.SpeechModelSizes(), ", ")+")")
	language := flag.String("language", "", "language hint for transcription (empty = auto)")
	sequential := flag.Bool("sequential", false, "run the OCR and speech passes one after the other")
	timeout := flag.Duration("timeout", 15*time.Minute, "overall extraction deadline")

	ffmpegBin := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	tesseractBin := flag.String("tesseract", "tesseract", "tesseract binary")
	tessLangs := flag.String("tesseract-langs", "eng", "tesseract language codes, joined with +")
	whisperBin := flag.String("whisper", "whisper-cli", "whisper.cpp binary")
	modelDir := flag.String("model-dir", "models", "directory holding ggml-<size>.bin speech models")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	media := ffmpeg.NewProcessor(*ffmpegBin, os.TempDir(), time.Minute, log)
	ocr := tesseract.NewEngine(*tesseractBin, *tessLangs, time.Minute, log)
	speech := whisper.NewEngine(*whisperBin, *modelDir, os.TempDir(), 10*time.Minute, log)

	registry := extractor.NewRegistry(log)
	registry.Register("image", extractor.NewImage(ocr, log))
	registry.Register("video", extractor.NewVideo(media, ocr, speech, log))

	opts := entity.DefaultOptions()
	opts.FrameInterval = *interval
	opts.MaxFrames = *maxFrames
	opts.EnableOCR = !*noOCR
	opts.EnableSpeech = !*noSpeech
	opts.SpeechModel = *model
	opts.Language = *language
	opts.Concurrent = !*sequential
	opts.Title = *title

	outline, err := registry.Extract(ctx, *input, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "extract:", err)
		os.Exit(1)
	}

	if *output == "" {
		fmt.Print(outline)
		return
	}
	if err := os.WriteFile(*output, []byte(outline), 0644); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		os.Exit(1)
	}
}
