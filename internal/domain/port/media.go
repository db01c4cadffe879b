package port

import (
	"context"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
)

// MediaProcessor wraps the external decoder binary: probing, frame sampling
// and audio extraction. All calls block until the external process finishes;
// the context bounds each invocation.
type MediaProcessor interface {
	// Check reports whether the decoder binary can be invoked at all.
	// Implementations return a user-actionable error when it cannot.
	Check(ctx context.Context) error

	// Probe queries duration, resolution and audio-track presence.
	Probe(ctx context.Context, path string) (*entity.MediaInfo, error)

	// ExtractFrames samples one still frame every interval seconds, up to
	// maxFrames, and returns the frames that were successfully written in
	// timestamp order. A single failed frame is skipped, never fatal.
	ExtractFrames(ctx context.Context, path string, interval float64, maxFrames int) ([]entity.Frame, error)

	// ExtractAudio strips the video track, downmixes to mono and resamples to
	// sampleRate Hz, writing 16-bit PCM WAV to a uniquely named temp file.
	ExtractAudio(ctx context.Context, path string, sampleRate int) (string, error)

	// CleanupFrames best-effort deletes the sampled frame files and their
	// directory when it empties. It never reports an error.
	CleanupFrames(frames []entity.Frame)
}
