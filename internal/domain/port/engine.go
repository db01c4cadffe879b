package port

import (
	"context"
	"image"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
)

// OCREngine recognizes positioned text in raster images. Implementations
// initialize lazily on first use behind a guard, so a single instance is safe
// to share once constructed, but must not be raced before that first call
// completes.
type OCREngine interface {
	// Recognize runs detection and recognition on an already-decoded image.
	// No detected text yields an empty slice, not an error.
	Recognize(ctx context.Context, img image.Image) ([]entity.TextBlock, error)

	// RecognizeFile runs recognition on an image file without the caller
	// decoding it first.
	RecognizeFile(ctx context.Context, path string) ([]entity.TextBlock, error)

	// Available reports whether initialization would succeed, without failing.
	Available(ctx context.Context) bool
}

// SpeechEngine converts an audio file into a transcript with time-stamped
// segments. Model size selects accuracy versus cost; language is an optional
// hint, empty meaning auto-detect.
type SpeechEngine interface {
	Transcribe(ctx context.Context, audioPath, modelSize, language string) (*entity.Transcription, error)

	// Available mirrors OCREngine.Available.
	Available(ctx context.Context) bool
}
