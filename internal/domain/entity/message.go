package entity

import "github.com/google/uuid"

// ExtractionRequestMessage is the inbound message from the extract.request queue.
type ExtractionRequestMessage struct {
	JobID     uuid.UUID       `json:"job_id"`
	UserID    string          `json:"user_id"`
	MediaKey  string          `json:"media_key"`
	FileSize  int64           `json:"file_size"`
	UserEmail string          `json:"user_email"`
	Options   *OptionsPayload `json:"options,omitempty"`
}

// OptionsPayload carries per-job option overrides on the wire. Absent fields
// keep their defaults, which is why every field is a pointer.
type OptionsPayload struct {
	FrameInterval *float64 `json:"frame_interval,omitempty"`
	MaxFrames     *int     `json:"max_frames,omitempty"`
	EnableOCR     *bool    `json:"enable_ocr,omitempty"`
	EnableSpeech  *bool    `json:"enable_speech,omitempty"`
	SpeechModel   *string  `json:"speech_model,omitempty"`
	Concurrent    *bool    `json:"concurrent,omitempty"`
	Title         *string  `json:"title,omitempty"`
	Language      *string  `json:"language,omitempty"`
}

// Apply overlays the payload's set fields onto opts and normalizes the result.
func (p *OptionsPayload) Apply(opts Options) Options {
	if p == nil {
		return opts.Normalize()
	}
	if p.FrameInterval != nil {
		opts.FrameInterval = *p.FrameInterval
	}
	if p.MaxFrames != nil {
		opts.MaxFrames = *p.MaxFrames
	}
	if p.EnableOCR != nil {
		opts.EnableOCR = *p.EnableOCR
	}
	if p.EnableSpeech != nil {
		opts.EnableSpeech = *p.EnableSpeech
	}
	if p.SpeechModel != nil {
		opts.SpeechModel = *p.SpeechModel
	}
	if p.Concurrent != nil {
		opts.Concurrent = *p.Concurrent
	}
	if p.Title != nil {
		opts.Title = *p.Title
	}
	if p.Language != nil {
		opts.Language = *p.Language
	}
	return opts.Normalize()
}

// ExtractionStatusMessage is the outbound message published to the extract.status queue.
type ExtractionStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	MediaKey     string    `json:"media_key"`
	OutlineKey   string    `json:"outline_key,omitempty"`
	LineCount    int       `json:"line_count,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
