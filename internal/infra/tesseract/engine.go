// Package tesseract wraps the tesseract CLI as the OCR engine. The binary is
// probed lazily on first use; recognition output is requested in TSV form and
// regrouped into positioned per-line text blocks.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrEngineUnavailable means the tesseract binary could not be located or
// invoked. Callers probe with Available before surfacing this to users.
var ErrEngineUnavailable = errors.New("tesseract not found: install it (apt install tesseract-ocr / brew install tesseract) and make sure it is on PATH")

type runFunc func(ctx context.Context, stdin io.Reader, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Engine is the OCR engine. A single instance is safe to share after the
// first call completes; the once guard serializes the lazy availability
// probe so concurrent first use cannot race it.
type Engine struct {
	bin       string
	languages string
	timeout   time.Duration
	logger    *zap.Logger
	run       runFunc

	initOnce sync.Once
	initErr  error
}

func NewEngine(bin, languages string, timeout time.Duration, logger *zap.Logger) *Engine {
	if bin == "" {
		bin = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	return &Engine{
		bin:       bin,
		languages: languages,
		timeout:   timeout,
		logger:    logger,
		run:       runCommand,
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
		if _, _, err := e.run(cctx, nil, e.bin, "--version"); err != nil {
			e.initErr = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	})
	return e.initErr
}

// Available reports whether recognition would work, without returning an error.
func (e *Engine) Available(ctx context.Context) bool {
	return e.ensure(ctx) == nil
}

// Recognize runs OCR on a decoded image, fed to tesseract over stdin as PNG.
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]entity.TextBlock, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image for ocr: %w", err)
	}
	return e.recognize(ctx, &buf, "stdin")
}

// RecognizeFile runs OCR directly on an image file.
func (e *Engine) RecognizeFile(ctx context.Context, path string) ([]entity.TextBlock, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	return e.recognize(ctx, nil, path)
}

func (e *Engine) recognize(ctx context.Context, stdin io.Reader, input string) ([]entity.TextBlock, error) {
	cctx, cancel := e.cmdContext(ctx)
	defer cancel()

	stdout, stderr, err := e.run(cctx, stdin, e.bin, input, "stdout", "-l", e.languages, "tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, firstLine(stderr))
	}

	blocks := parseTSV(string(stdout))
	e.logger.Debug("ocr pass finished",
		zap.String("input", input),
		zap.Int("blocks", len(blocks)),
	)
	return blocks, nil
}

// tsv column indexes of interest; see tesseract's TSV renderer.
const (
	colLevel = 0
	colBlock = 2
	colPar   = 3
	colLine  = 4
	colLeft  = 6
	colTop   = 7
	colWidth = 8
	colHght  = 9
	colConf  = 10
	colText  = 11
	numCols  = 12
)

const wordLevel = 5

// parseTSV regroups tesseract's per-word TSV rows into per-line text blocks
// with a union bounding quad and the mean word confidence, normalized to
// [0, 1]. Rows that are not word rows or carry no text are dropped.
func parseTSV(out string) []entity.TextBlock {
	type lineAcc struct {
		words                  []string
		minX, minY, maxX, maxY float64
		confSum                float64
		confN                  int
	}

	var order []string
	lines := make(map[string]*lineAcc)

	for i, row := range strings.Split(out, "\n") {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < numCols {
			continue
		}
		if lvl, err := strconv.Atoi(cols[colLevel]); err != nil || lvl != wordLevel {
			continue
		}
		text := strings.TrimSpace(cols[colText])
		if text == "" {
			continue
		}

		left, _ := strconv.ParseFloat(cols[colLeft], 64)
		top, _ := strconv.ParseFloat(cols[colTop], 64)
		width, _ := strconv.ParseFloat(cols[colWidth], 64)
		height, _ := strconv.ParseFloat(cols[colHght], 64)
		conf, _ := strconv.ParseFloat(cols[colConf], 64)

		key := cols[colBlock] + "/" + cols[colPar] + "/" + cols[colLine]
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{minX: left, minY: top, maxX: left + width, maxY: top + height}
			lines[key] = acc
			order = append(order, key)
		}

		acc.words = append(acc.words, text)
		acc.minX = min(acc.minX, left)
		acc.minY = min(acc.minY, top)
		acc.maxX = max(acc.maxX, left+width)
		acc.maxY = max(acc.maxY, top+height)
		if conf >= 0 {
			acc.confSum += conf
			acc.confN++
		}
	}

	blocks := make([]entity.TextBlock, 0, len(order))
	for _, key := range order {
		acc := lines[key]
		confidence := 0.0
		if acc.confN > 0 {
			confidence = acc.confSum / float64(acc.confN) / 100
		}
		if confidence > 1 {
			confidence = 1
		}
		blocks = append(blocks, entity.TextBlock{
			Box: [4]entity.Point{
				{X: acc.minX, Y: acc.minY},
				{X: acc.maxX, Y: acc.minY},
				{X: acc.maxX, Y: acc.maxY},
				{X: acc.minX, Y: acc.maxY},
			},
			Text:       strings.Join(acc.words, " "),
			Confidence: confidence,
		})
	}
	return blocks
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
