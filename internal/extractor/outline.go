package extractor

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OvHaozzZ/txt2anything/internal/domain/entity"
)

const (
	indentUnit = "  "
	ocrMarker  = "[screen] "

	videoPlaceholder = "(no content could be extracted)"
	imagePlaceholder = "(no text detected)"

	// indentBucketPx maps horizontal offset to nesting depth: one level per
	// 50 px. A heuristic, not a layout engine.
	indentBucketPx = 50.0
)

// titleFor picks the outline title: the custom one if set, otherwise the file
// name without its extension.
func titleFor(path, custom string) string {
	if custom != "" {
		return custom
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// formatTimestamp renders seconds as MM:SS.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// mergeTimeline fuses the two source streams into one chronological
// timeline. The sort is stable, so items with equal timestamps keep their
// emission order and OCR items stay ahead of speech items on ties.
func mergeTimeline(ocrItems, speechItems []entity.ContentItem) []entity.ContentItem {
	all := make([]entity.ContentItem, 0, len(ocrItems)+len(speechItems))
	all = append(all, ocrItems...)
	all = append(all, speechItems...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp < all[j].Timestamp
	})
	return all
}

// renderTimeline writes the title line and one flat child line per content
// item. Video content is chronological, not hierarchical, so everything sits
// at a single indentation level below the title.
func renderTimeline(items []entity.ContentItem, title string) string {
	var b strings.Builder
	b.WriteString(title)

	if len(items) == 0 {
		b.WriteString("\n" + indentUnit + videoPlaceholder)
		return b.String()
	}

	for _, item := range items {
		b.WriteString("\n" + indentUnit + "[" + formatTimestamp(item.Timestamp) + "] ")
		if item.Source == entity.SourceOCR {
			b.WriteString(ocrMarker)
		}
		b.WriteString(item.Text)
	}
	return b.String()
}

// renderBlocks reconstructs a plausible reading order from text-block
// geometry: sort by top-left Y then X, then map each block's horizontal
// offset from the leftmost block to a nesting depth in fixed 50 px buckets,
// floored at depth 1 since depth 0 is the title. Known not to handle
// multi-column or rotated layouts.
func renderBlocks(blocks []entity.TextBlock, title string) string {
	kept := make([]entity.TextBlock, 0, len(blocks))
	for _, blk := range blocks {
		if strings.TrimSpace(blk.Text) != "" {
			kept = append(kept, blk)
		}
	}

	if len(kept) == 0 {
		return title + "\n" + indentUnit + imagePlaceholder
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Box[0].Y != kept[j].Box[0].Y {
			return kept[i].Box[0].Y < kept[j].Box[0].Y
		}
		return kept[i].Box[0].X < kept[j].Box[0].X
	})

	baseX := kept[0].Box[0].X
	for _, blk := range kept[1:] {
		if blk.Box[0].X < baseX {
			baseX = blk.Box[0].X
		}
	}

	var b strings.Builder
	b.WriteString(title)
	for _, blk := range kept {
		depth := int((blk.Box[0].X - baseX) / indentBucketPx)
		if depth < 1 {
			depth = 1
		}
		b.WriteString("\n" + strings.Repeat(indentUnit, depth) + strings.TrimSpace(blk.Text))
	}
	return b.String()
}
