// Package transcription turns audio files into text, either through an
// OpenAI-compatible Whisper HTTP service or a local command.
package transcription

import "context"

// Client transcribes a single audio file. language may be empty to let the
// backend detect it.
type Client interface {
	Transcribe(ctx context.Context, audioFilePath, language string) (*Result, error)
}

// Result mirrors the verbose_json response of the transcription service.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration *float64  `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens,omitempty"`
	Temperature      float64 `json:"temperature"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}
