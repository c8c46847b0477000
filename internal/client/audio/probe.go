// Package audio reads metadata from recorded voice notes.
package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/go-audio/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Duration returns the playback length of the WAV file at path.
//
// Missing files yield common.ErrFileNotFound. Files that are not valid WAV
// yield ErrUnsupportedFormat; callers may still keep the note and leave its
// duration at zero.
func Duration(path string) (time.Duration, error) {
	if strings.TrimSpace(path) == "" {
		return 0, fmt.Errorf("%w: empty audio path", common.ErrValidation)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", common.ErrFileNotFound, path)
	}
	if err != nil {
		return 0, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("read wav data chunk: %w", err)
	}

	bytesPerSec := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if bytesPerSec == 0 {
		return 0, fmt.Errorf("%w: %s has no sample format", ErrUnsupportedFormat, path)
	}
	return time.Duration(int64(dec.PCMSize) * int64(time.Second) / bytesPerSec), nil
}
