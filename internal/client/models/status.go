package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RecognitionStatus is the client's view of recognition progress. The
// integer values are what the local database stores.
type RecognitionStatus int

const (
	RecognitionInQueue RecognitionStatus = iota
	RecognitionRecognizing
	RecognitionReady
	RecognitionError
)

func (s RecognitionStatus) String() string {
	switch s {
	case RecognitionInQueue:
		return "Waiting in queue"
	case RecognitionRecognizing:
		return "Recognizing"
	case RecognitionReady:
		return "Transcript ready"
	case RecognitionError:
		return "Recognition failed"
	default:
		return fmt.Sprintf("RecognitionStatus(%d)", int(s))
	}
}

func (s RecognitionStatus) Valid() bool {
	return s >= RecognitionInQueue && s <= RecognitionError
}

// IsTerminal reports whether the server will not change the status any more.
func (s RecognitionStatus) IsTerminal() bool {
	return s == RecognitionReady || s == RecognitionError
}

// SyncStatus tracks how far a note got on its way to the server.
type SyncStatus int

const (
	SyncLocalOnly SyncStatus = iota
	SyncUploading
	SyncSynced
	SyncFailed
)

func (s SyncStatus) String() string {
	switch s {
	case SyncLocalOnly:
		return "Local only"
	case SyncUploading:
		return "Uploading"
	case SyncSynced:
		return "Synced"
	case SyncFailed:
		return "Sync failed"
	default:
		return fmt.Sprintf("SyncStatus(%d)", int(s))
	}
}

func (s SyncStatus) Valid() bool {
	return s >= SyncLocalOnly && s <= SyncFailed
}

// RemoteStatus is the recognition status reported by the server.
type RemoteStatus string

const (
	RemoteUploaded    RemoteStatus = "Uploaded"
	RemoteQueued      RemoteStatus = "Queued"
	RemoteRecognizing RemoteStatus = "Recognizing"
	RemoteCompleted   RemoteStatus = "Completed"
	RemoteFailed      RemoteStatus = "Failed"
)

// remoteStatuses is ordered by the server's ordinal.
var remoteStatuses = []RemoteStatus{
	RemoteUploaded,
	RemoteQueued,
	RemoteRecognizing,
	RemoteCompleted,
	RemoteFailed,
}

// IsTerminal reports whether the server is done with the note.
func (s RemoteStatus) IsTerminal() bool {
	return s == RemoteCompleted || s == RemoteFailed
}

// UnmarshalJSON accepts either the status name or its ordinal.
func (s *RemoteStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		for _, st := range remoteStatuses {
			if string(st) == name {
				*s = st
				return nil
			}
		}
		return fmt.Errorf("unknown recognition status %q", name)
	}

	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid recognition status %s", b)
	}
	if n < 0 || n >= len(remoteStatuses) {
		return fmt.Errorf("recognition status ordinal %d out of range", n)
	}
	*s = remoteStatuses[n]
	return nil
}

// MapRemoteStatus converts a server status into the local one. Unknown
// values map to RecognitionInQueue so the note keeps being polled.
func MapRemoteStatus(s RemoteStatus) RecognitionStatus {
	switch s {
	case RemoteUploaded, RemoteQueued:
		return RecognitionInQueue
	case RemoteRecognizing:
		return RecognitionRecognizing
	case RemoteCompleted:
		return RecognitionReady
	case RemoteFailed:
		return RecognitionError
	default:
		return RecognitionInQueue
	}
}
