// Package extractor holds the content extractors and the registry that
// dispatches media files to them by extension. The produced outline text is
// the sole contract handed to the downstream parser: a title line followed by
// lines indented two spaces per nesting level.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/domain/port"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat means no registered extractor claims the file's
// extension. A caller error, never retried.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Registry maps lower-cased file extensions to extractors. It is constructed
// once at process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	extractors map[string]port.ContentExtractor
	byExt      map[string]string
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		extractors: make(map[string]port.ContentExtractor),
		byExt:      make(map[string]string),
		logger:     logger,
	}
}

// Register adds an extractor under a name and claims its extensions. A later
// registration for an already-claimed extension overwrites the mapping; this
// is an explicit override, not a merge.
func (r *Registry) Register(name string, ex port.ContentExtractor) {
	r.extractors[name] = ex
	for _, ext := range ex.Formats() {
		ext = strings.ToLower(ext)
		if prev, ok := r.byExt[ext]; ok && prev != name {
			r.logger.Warn("extension mapping overridden",
				zap.String("extension", ext),
				zap.String("previous", prev),
				zap.String("now", name),
			)
		}
		r.byExt[ext] = name
	}
}

// Extract dispatches by the file's lower-cased extension.
func (r *Registry) Extract(ctx context.Context, path string, opts entity.Options) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	name, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedFormat, ext, strings.Join(r.extensions(), ", "))
	}
	return r.extractors[name].Extract(ctx, path, opts)
}

// IsSupported reports whether some extractor claims the file's extension.
func (r *Registry) IsSupported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedFormats lists the claimed extensions grouped by extractor name.
func (r *Registry) SupportedFormats() map[string][]string {
	out := make(map[string][]string, len(r.extractors))
	for ext, name := range r.byExt {
		out[name] = append(out[name], ext)
	}
	for name := range out {
		sort.Strings(out[name])
	}
	return out
}

func (r *Registry) extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
