package port

import (
	"context"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
)

// ContentExtractor turns one media file into the hierarchical outline text
// consumed by the downstream parser.
type ContentExtractor interface {
	// Formats lists the lower-cased file extensions this extractor claims,
	// dot included (".mp4").
	Formats() []string

	Extract(ctx context.Context, path string, opts entity.Options) (string, error)
}
