package entity

// Source tags where a piece of extracted content came from.
type Source string

const (
	SourceOCR    Source = "ocr"
	SourceSpeech Source = "speech"
)

// MediaInfo holds the probed properties of a media file. It is rebuilt per
// extraction call and never cached across files. A probe that cannot parse
// duration or resolution leaves them at their zero values; HasAudio defaults
// to true so a speech pass is not silently skipped.
type MediaInfo struct {
	Path     string
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Frame is one sampled still image, written by the frame sampler.
type Frame struct {
	Path      string
	Timestamp float64
}

// Point is an (x, y) coordinate in image pixel space.
type Point struct {
	X float64
	Y float64
}

// TextBlock is one positioned piece of recognized text. Box holds the four
// corners of the bounding quad, starting at the top-left and going clockwise.
// Confidence is normalized to [0, 1].
type TextBlock struct {
	Box        [4]Point
	Text       string
	Confidence float64
}

// TranscriptSegment is a time-stamped slice of a transcription,
// End >= Start >= 0. Segments arrive from the speech engine already ordered
// by Start.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// Transcription is the full result of a speech-to-text pass.
type Transcription struct {
	Text     string
	Language string
	Segments []TranscriptSegment
}

// ContentItem is the unit the timeline merge consumes: a piece of text pinned
// to a point on the media timeline, tagged with its source.
type ContentItem struct {
	Timestamp float64
	Text      string
	Source    Source
}
