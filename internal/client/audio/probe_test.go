package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, sampleRate, samples int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.wav")
	writeWAV(t, path, 8000, 8000*3/2)

	d, err := Duration(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestDuration_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Duration(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	_, err = Duration("  ")
	assert.ErrorIs(t, err, common.ErrValidation)

	junk := filepath.Join(dir, "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not riff data"), 0o600))
	_, err = Duration(junk)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
