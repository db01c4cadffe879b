package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDecoderUnavailable means the ffmpeg binary could not be located or
	// invoked. It is raised before any extraction work begins.
	ErrDecoderUnavailable = errors.New("ffmpeg not found: install it and make sure it is on PATH (https://ffmpeg.org/download.html)")

	// ErrProbeFailed means ffmpeg ran but produced no parseable diagnostics.
	ErrProbeFailed = errors.New("could not parse decoder output")

	// ErrAudioExtraction means the decoder exited non-zero while extracting
	// the audio track. Fatal for the speech path only.
	ErrAudioExtraction = errors.New("audio extraction failed")
)

var (
	durationRe   = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
	resolutionRe = regexp.MustCompile(`(\d{2,5})x(\d{2,5})`)
)

// runFunc invokes an external command and returns its stdout and stderr
// separately. Swappable in tests.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Processor shells out to the ffmpeg binary for media probing, frame sampling
// and audio extraction. Every invocation runs under a per-command deadline so
// a decoder hanging on malformed input cannot stall an extraction forever.
type Processor struct {
	bin     string
	tempDir string
	timeout time.Duration
	logger  *zap.Logger
	run     runFunc
}

func NewProcessor(bin, tempDir string, timeout time.Duration, logger *zap.Logger) *Processor {
	if bin == "" {
		bin = "ffmpeg"
	}
	if tempDir != "" {
		_ = os.MkdirAll(tempDir, 0755)
	}
	return &Processor{
		bin:     bin,
		tempDir: tempDir,
		timeout: timeout,
		logger:  logger,
		run:     runCommand,
	}
}

func (p *Processor) cmdContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Check reports whether ffmpeg can be invoked at all.
func (p *Processor) Check(ctx context.Context) error {
	cctx, cancel := p.cmdContext(ctx)
	defer cancel()

	if _, _, err := p.run(cctx, p.bin, "-version"); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoderUnavailable, err)
	}
	return nil
}

// Probe queries duration, resolution and audio-track presence from ffmpeg's
// diagnostic stream. The output format is version fragile, so missing
// duration or resolution degrade to zero values and HasAudio defaults to
// true; only an entirely unreadable run is reported as ErrProbeFailed.
func (p *Processor) Probe(ctx context.Context, path string) (*entity.MediaInfo, error) {
	cctx, cancel := p.cmdContext(ctx)
	defer cancel()

	// ffmpeg -i with no output file always exits non-zero; the diagnostics on
	// stderr are still what we want.
	_, stderr, err := p.run(cctx, p.bin, "-i", path, "-hide_banner")
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrDecoderUnavailable, err)
	}
	if len(bytes.TrimSpace(stderr)) == 0 {
		return nil, fmt.Errorf("%w: empty diagnostic stream for %s", ErrProbeFailed, path)
	}

	info := parseProbeOutput(string(stderr))
	info.Path = path
	return info, nil
}

func parseProbeOutput(diag string) *entity.MediaInfo {
	info := &entity.MediaInfo{HasAudio: true}

	if m := durationRe.FindStringSubmatch(diag); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		cs, _ := strconv.Atoi(m[4])
		info.Duration = float64(h)*3600 + float64(min)*60 + float64(s) + float64(cs)/100
	}

	if m := resolutionRe.FindStringSubmatch(diag); m != nil {
		info.Width, _ = strconv.Atoi(m[1])
		info.Height, _ = strconv.Atoi(m[2])
	}

	// Only trust the audio marker when stream lines are present at all;
	// otherwise stay with the conservative default so a speech pass is not
	// silently dropped.
	if strings.Contains(diag, "Stream #") {
		info.HasAudio = strings.Contains(diag, "Audio:")
	}

	return info
}

// frameTimestamps returns the sampling points for a video of the given
// duration: min(floor(duration/interval)+1, maxFrames) timestamps spaced
// interval seconds apart, never past the end of the video.
func frameTimestamps(duration, interval float64, maxFrames int) []float64 {
	if duration <= 0 || interval <= 0 || maxFrames <= 0 {
		return nil
	}
	n := int(duration/interval) + 1
	if n > maxFrames {
		n = maxFrames
	}
	stamps := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		ts := float64(i) * interval
		if ts > duration {
			break
		}
		stamps = append(stamps, ts)
	}
	return stamps
}

// ExtractFrames seeks and dumps one JPEG per sampling point into a fresh
// batch directory. A frame that fails to decode is logged and skipped, never
// aborting the batch; only frames that were actually written are returned.
func (p *Processor) ExtractFrames(ctx context.Context, path string, interval float64, maxFrames int) ([]entity.Frame, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	stamps := frameTimestamps(info.Duration, interval, maxFrames)
	if len(stamps) == 0 {
		return nil, nil
	}

	outDir, err := os.MkdirTemp(p.tempDir, "txt2anything_frames_")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	frames := make([]entity.Frame, 0, len(stamps))
	for i, ts := range stamps {
		outPath := filepath.Join(outDir, fmt.Sprintf("frame_%04d.jpg", i))

		cctx, cancel := p.cmdContext(ctx)
		_, stderr, err := p.run(cctx, p.bin,
			"-ss", strconv.FormatFloat(ts, 'f', -1, 64),
			"-i", path,
			"-vframes", "1",
			"-q:v", "2",
			"-y",
			outPath,
		)
		cancel()
		if err != nil {
			p.logger.Warn("frame decode failed, skipping",
				zap.Float64("timestamp", ts),
				zap.Error(err),
				zap.String("ffmpeg_output", tail(stderr, 200)),
			)
			continue
		}
		if _, err := os.Stat(outPath); err != nil {
			continue
		}
		frames = append(frames, entity.Frame{Path: outPath, Timestamp: ts})
	}

	p.logger.Info("frames sampled",
		zap.Int("requested", len(stamps)),
		zap.Int("written", len(frames)),
		zap.Float64("duration", info.Duration),
	)
	return frames, nil
}

// ExtractAudio strips the video track and writes mono 16-bit PCM WAV at the
// given sample rate to a uniquely named temp file.
func (p *Processor) ExtractAudio(ctx context.Context, path string, sampleRate int) (string, error) {
	outPath := filepath.Join(tempRoot(p.tempDir), "txt2anything_audio_"+uuid.NewString()+".wav")

	cctx, cancel := p.cmdContext(ctx)
	defer cancel()

	_, stderr, err := p.run(cctx, p.bin,
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y",
		outPath,
	)
	if err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("%w: %v: %s", ErrAudioExtraction, err, tail(stderr, 200))
	}
	return outPath, nil
}

// CleanupFrames deletes every frame file and, once empty, the batch
// directory. Failures are swallowed so cleanup never masks an upstream error.
func (p *Processor) CleanupFrames(frames []entity.Frame) {
	for _, f := range frames {
		if f.Path == "" {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			p.logger.Debug("frame cleanup failed", zap.String("path", f.Path), zap.Error(err))
		}
	}
	if len(frames) > 0 {
		_ = os.Remove(filepath.Dir(frames[0].Path))
	}
}

func tempRoot(dir string) string {
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

func tail(b []byte, n int) string {
	s := string(bytes.TrimSpace(b))
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
