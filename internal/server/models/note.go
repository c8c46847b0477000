// Package models holds the server-side note record, its recognition status
// and the API projection.
package models

import "time"

// NoteRecord is the persisted form of a voice note.
type NoteRecord struct {
	ID                string
	Title             string
	CategoryLabel     string
	OriginalText      string
	RecognizedText    string
	ErrorMessage      string
	AudioPath         string
	PhotoPaths        []string
	RecognitionStatus RecognitionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NoteResponse is what the API returns for a note.
type NoteResponse struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	CategoryLabel     string            `json:"categoryLabel"`
	RecognizedText    string            `json:"recognizedText,omitempty"`
	RecognitionStatus RecognitionStatus `json:"recognitionStatus"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
}

func NewNoteResponse(r *NoteRecord) NoteResponse {
	return NoteResponse{
		ID:                r.ID,
		Title:             r.Title,
		CategoryLabel:     r.CategoryLabel,
		RecognizedText:    r.RecognizedText,
		RecognitionStatus: r.RecognitionStatus,
		ErrorMessage:      r.ErrorMessage,
	}
}
