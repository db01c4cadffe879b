// Package whisper wraps a whisper.cpp CLI as the speech-to-text engine.
// Models are resolved per size and cached for the engine's lifetime; voice
// activity detection is always on so silence does not produce spurious
// segments.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrEngineUnavailable means the whisper binary could not be located or
	// invoked. Callers probe with Available before surfacing this to users.
	ErrEngineUnavailable = errors.New("whisper-cli not found: build whisper.cpp and make sure whisper-cli is on PATH")

	// ErrUnknownModel means the requested model size is not one of the
	// accepted sizes.
	ErrUnknownModel = errors.New("unknown speech model size")
)

const minSilenceMs = "500"

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Engine is the speech engine. Multiple model sizes may be resident at once;
// the per-size resolution is cached so repeated calls do not re-validate the
// model file. The once guard serializes the lazy availability probe.
type Engine struct {
	bin      string
	modelDir string
	tempDir  string
	timeout  time.Duration
	logger   *zap.Logger
	run      runFunc

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	models map[string]string
}

func NewEngine(bin, modelDir, tempDir string, timeout time.Duration, logger *zap.Logger) *Engine {
	if bin == "" {
		bin = "whisper-cli"
	}
	return &Engine{
		bin:      bin,
		modelDir: modelDir,
		tempDir:  tempDir,
		timeout:  timeout,
		logger:   logger,
		run:      runCommand,
		models:   make(map[string]string),
	}
}

func (e *Engine) cmdContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) ensure(ctx context.Context) error {
	e.initOnce.Do(func() {
		cctx, cancel := e.cmdContext(ctx)
		defer cancel()
		if _, _, err := e.run(cctx, e.bin, "--help"); err != nil {
			e.initErr = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	})
	return e.initErr
}

// Available reports whether transcription would work, without returning an error.
func (e *Engine) Available(ctx context.Context) bool {
	return e.ensure(ctx) == nil
}

// modelPath resolves and caches the ggml model file for a size.
func (e *Engine) modelPath(size string) (string, error) {
	if !slices.Contains(entity.SpeechModelSizes(), size) {
		return "", fmt.Errorf("%w: %q (accepted: %s)",
			ErrUnknownModel, size, strings.Join(entity.SpeechModelSizes(), ", "))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if path, ok := e.models[size]; ok {
		return path, nil
	}

	path := filepath.Join(e.modelDir, "ggml-"+size+".bin")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("speech model %q not found at %s: download it with whisper.cpp's download-ggml-model.sh %s", size, path, size)
	}
	e.models[size] = path
	return path, nil
}

// transcriptionOutput matches whisper.cpp's JSON renderer.
type transcriptionOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs speech recognition on an audio file. Accelerated execution
// is attempted first; if that fails the engine silently retries on CPU, so
// the caller never sees the device fallback.
func (e *Engine) Transcribe(ctx context.Context, audioPath, modelSize, language string) (*entity.Transcription, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	if modelSize == "" {
		modelSize = entity.DefaultSpeechModel
	}
	model, err := e.modelPath(modelSize)
	if err != nil {
		return nil, err
	}

	outBase := filepath.Join(tempRoot(e.tempDir), "txt2anything_whisper_"+uuid.NewString())
	jsonPath := outBase + ".json"
	defer os.Remove(jsonPath)

	if language == "" {
		language = "auto"
	}
	args := []string{
		"-m", model,
		"-f", audioPath,
		"-l", language,
		"--vad",
		"--vad-min-silence-duration-ms", minSilenceMs,
		"-oj",
		"-of", outBase,
	}

	_, stderr, err := e.runOnce(ctx, args)
	if err != nil {
		e.logger.Warn("accelerated transcription failed, falling back to cpu",
			zap.Error(err),
			zap.String("output", firstLine(stderr)),
		)
		_, stderr, err = e.runOnce(ctx, append(args, "-ng"))
		if err != nil {
			return nil, fmt.Errorf("whisper: %w: %s", err, firstLine(stderr))
		}
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read transcription output: %w", err)
	}
	return parseOutput(data)
}

func (e *Engine) runOnce(ctx context.Context, args []string) ([]byte, []byte, error) {
	cctx, cancel := e.cmdContext(ctx)
	defer cancel()
	return e.run(cctx, e.bin, args...)
}

func parseOutput(data []byte) (*entity.Transcription, error) {
	var out transcriptionOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse transcription output: %w", err)
	}

	tr := &entity.Transcription{Language: out.Result.Language}
	var parts []string
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tr.Segments = append(tr.Segments, entity.TranscriptSegment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  text,
		})
		parts = append(parts, text)
	}
	tr.Text = strings.Join(parts, " ")
	return tr, nil
}

func tempRoot(dir string) string {
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
