package extractor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
	"github.com/OvHaozzZ/txt2anything/internal/domain/port"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// Image extracts text from still images via OCR and reconstructs a reading
// order from block geometry.
type Image struct {
	ocr    port.OCREngine
	logger *zap.Logger
}

func NewImage(ocr port.OCREngine, logger *zap.Logger) *Image {
	return &Image{ocr: ocr, logger: logger}
}

func (e *Image) Formats() []string {
	return []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tiff", ".tif"}
}

func (e *Image) Extract(ctx context.Context, path string, opts entity.Options) (string, error) {
	opts = opts.Normalize()

	img, err := loadImage(path, opts.Preprocess, opts.MaxImageEdge)
	if err != nil {
		return "", err
	}

	blocks, err := e.ocr.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", path, err)
	}

	e.logger.Debug("image extracted",
		zap.String("path", path),
		zap.Int("blocks", len(blocks)),
	)
	return renderBlocks(blocks, titleFor(path, opts.Title)), nil
}

// loadImage decodes an image file and, when preprocessing is on, flattens it
// to an opaque RGB raster and downscales oversized inputs so OCR latency
// stays bounded.
func loadImage(path string, preprocess bool, maxEdge int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	if !preprocess {
		return img, nil
	}

	img = flatten(img)
	bounds := img.Bounds()
	if longer := max(bounds.Dx(), bounds.Dy()); longer > maxEdge {
		img = resize.Thumbnail(uint(maxEdge), uint(maxEdge), img, resize.Lanczos3)
	}
	return img, nil
}

// flatten composites the image over white, normalizing alpha and palette
// formats to plain RGB.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
