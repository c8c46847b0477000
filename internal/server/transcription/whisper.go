package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	DefaultModel       = "base"
	DefaultTimeout     = 5 * time.Minute
)

// WhisperClient calls an OpenAI-compatible transcription endpoint. It makes
// exactly one request per call and never retries.
type WhisperClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type WhisperOption func(*WhisperClient)

func WithHTTPClient(c *http.Client) WhisperOption {
	return func(w *WhisperClient) { w.httpClient = c }
}

func WithModel(model string) WhisperOption {
	return func(w *WhisperClient) {
		if model != "" {
			w.model = model
		}
	}
}

func WithTimeout(d time.Duration) WhisperOption {
	return func(w *WhisperClient) {
		if d > 0 {
			w.httpClient.Timeout = d
		}
	}
}

func NewWhisperClient(baseURL string, opts ...WhisperOption) *WhisperClient {
	w := &WhisperClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WhisperClient) Transcribe(ctx context.Context, audioFilePath, language string) (*Result, error) {
	ok, err := filex.Exists(audioFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", common.ErrFileNotFound, audioFilePath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, audioFilePath)
	}

	audio, err := os.Open(audioFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrFileNotFound, err)
	}

	// the audio is streamed into the request body instead of being buffered
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer audio.Close()
		err := w.writeForm(mw, audio, filepath.Base(audioFilePath), language)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+transcriptionsPath, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: build request: %w", common.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", common.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: transcription service returned %d: %s",
			common.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", common.ErrUpstream, err)
	}
	return &result, nil
}

func (w *WhisperClient) writeForm(mw *multipart.Writer, audio io.Reader, filename, language string) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	fields := [][2]string{{"model", w.model}, {"response_format", "verbose_json"}}
	if language != "" {
		fields = append(fields, [2]string{"language", language})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
