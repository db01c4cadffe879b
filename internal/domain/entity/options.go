package entity

// Speech model sizes accepted by the speech engine.
const (
	ModelTiny    = "tiny"
	ModelBase    = "base"
	ModelSmall   = "small"
	ModelMedium  = "medium"
	ModelLargeV2 = "large-v2"
	ModelLargeV3 = "large-v3"
)

// SpeechModelSizes lists the accepted model sizes in ascending order of cost.
func SpeechModelSizes() []string {
	return []string{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLargeV2, ModelLargeV3}
}

const (
	DefaultFrameInterval = 5.0
	DefaultMaxFrames     = 50
	DefaultMaxImageEdge  = 2048
	DefaultSpeechModel   = ModelBase
)

// Options configures a single extraction invocation.
type Options struct {
	// FrameInterval is the spacing between sampled video frames, in seconds.
	FrameInterval float64
	// MaxFrames caps how many frames are sampled from one video.
	MaxFrames int
	// EnableOCR turns the on-screen text pass on or off.
	EnableOCR bool
	// EnableSpeech turns the transcription pass on or off.
	EnableSpeech bool
	// SpeechModel selects the speech model size (tiny..large-v3).
	SpeechModel string
	// Concurrent runs the OCR and speech passes as two parallel tasks.
	Concurrent bool
	// Title overrides the synthetic title line; empty means use the file name.
	Title string
	// Preprocess normalizes and downscales images before OCR.
	Preprocess bool
	// MaxImageEdge bounds the longer edge of an image handed to OCR, in pixels.
	MaxImageEdge int
	// Language is an optional language hint for transcription; empty means
	// auto-detect.
	Language string
}

// DefaultOptions returns the options used when the caller specifies nothing.
func DefaultOptions() Options {
	return Options{
		FrameInterval: DefaultFrameInterval,
		MaxFrames:     DefaultMaxFrames,
		EnableOCR:     true,
		EnableSpeech:  true,
		SpeechModel:   DefaultSpeechModel,
		Concurrent:    true,
		Preprocess:    true,
		MaxImageEdge:  DefaultMaxImageEdge,
	}
}

// Normalize fills zero values with their defaults so that a partially
// populated Options is safe to use.
func (o Options) Normalize() Options {
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	if o.SpeechModel == "" {
		o.SpeechModel = DefaultSpeechModel
	}
	if o.MaxImageEdge <= 0 {
		o.MaxImageEdge = DefaultMaxImageEdge
	}
	return o
}
