package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RecognitionStatus is the server-side recognition state of a note.
//
//	Uploaded → Queued → Recognizing → Completed | Failed
//	Failed → Queued (explicit retry through the API)
type RecognitionStatus string

const (
	StatusUploaded    RecognitionStatus = "Uploaded"
	StatusQueued      RecognitionStatus = "Queued"
	StatusRecognizing RecognitionStatus = "Recognizing"
	StatusCompleted   RecognitionStatus = "Completed"
	StatusFailed      RecognitionStatus = "Failed"
)

// allStatuses is ordered by ordinal, matching the numeric wire form.
var allStatuses = []RecognitionStatus{
	StatusUploaded,
	StatusQueued,
	StatusRecognizing,
	StatusCompleted,
	StatusFailed,
}

// Statuses returns every status in ordinal order.
func Statuses() []RecognitionStatus {
	return append([]RecognitionStatus(nil), allStatuses...)
}

func ParseRecognitionStatus(s string) (RecognitionStatus, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown recognition status %q", s)
}

func (s RecognitionStatus) Valid() bool {
	_, err := ParseRecognitionStatus(string(s))
	return err == nil
}

// IsTerminal reports whether the worker is done with the note.
func (s RecognitionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanQueue reports whether a recognition request moves the note to Queued.
// Completed and Recognizing notes are left alone, as are notes already queued.
func (s RecognitionStatus) CanQueue() bool {
	switch s {
	case StatusUploaded, StatusFailed:
		return true
	default:
		return false
	}
}

// UnmarshalJSON accepts either the status name or its ordinal.
func (s *RecognitionStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		st, err := ParseRecognitionStatus(name)
		if err != nil {
			return err
		}
		*s = st
		return nil
	}

	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid recognition status %s", b)
	}
	if n < 0 || n >= len(allStatuses) {
		return fmt.Errorf("recognition status ordinal %d out of range", n)
	}
	*s = allStatuses[n]
	return nil
}
