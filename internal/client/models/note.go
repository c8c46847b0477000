// Package models defines the client-side voice note and its local states.
package models

import (
	"fmt"
	"time"
)

// VoiceNote is a note as the client stores it locally. LocalID and
// SyncStatus belong to the client; everything behind ServerID is owned by
// the server.
type VoiceNote struct {
	LocalID           int64
	ServerID          string
	Title             string
	AudioFilePath     string
	Duration          time.Duration
	OriginalText      string
	RecognizedText    string
	CategoryLabel     string
	RecognitionStatus RecognitionStatus
	SyncStatus        SyncStatus
	Photos            []Photo
	Tags              []Tag
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Photo struct {
	ID        int64
	FilePath  string
	CreatedAt time.Time
}

type Tag struct {
	ID    int64
	Value string
}

// PhotoPaths returns the file paths of the attached photos in order.
func (n *VoiceNote) PhotoPaths() []string {
	paths := make([]string, 0, len(n.Photos))
	for _, p := range n.Photos {
		paths = append(paths, p.FilePath)
	}
	return paths
}

// DurationDisplay renders Duration as mm:ss.
func (n *VoiceNote) DurationDisplay() string {
	d := n.Duration.Round(time.Second)
	if d <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int((d%time.Minute)/time.Second))
}

// NeedsUpload reports whether the note still has to be sent to the server.
func (n *VoiceNote) NeedsUpload() bool {
	return n.ServerID == "" && (n.SyncStatus == SyncLocalOnly || n.SyncStatus == SyncFailed)
}

// AwaitsRecognition reports whether the server still has work to do on the note.
func (n *VoiceNote) AwaitsRecognition() bool {
	return n.ServerID != "" && (n.RecognitionStatus == RecognitionInQueue || n.RecognitionStatus == RecognitionRecognizing)
}
