// Package api is the HTTP client of the notes server used by the sync
// coordinator and the CLI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/auth"
	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/netx"
)

const (
	DefaultTimeout  = 2 * time.Minute
	defaultTokenTTL = 5 * time.Minute
	maxErrorBody    = 4 << 10
)

// NoteResponse mirrors the server's note projection.
type NoteResponse struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	CategoryLabel     string              `json:"categoryLabel"`
	RecognizedText    string              `json:"recognizedText,omitempty"`
	RecognitionStatus models.RemoteStatus `json:"recognitionStatus"`
	ErrorMessage      string              `json:"errorMessage,omitempty"`
}

// ResolvedText is what the client shows as the note text: the error
// message when there is one, the recognized text otherwise.
func (r *NoteResponse) ResolvedText() string {
	if strings.TrimSpace(r.ErrorMessage) != "" {
		return r.ErrorMessage
	}
	return r.RecognizedText
}

// UploadRequest describes a note to create. Files that do not exist are
// skipped.
type UploadRequest struct {
	Title         string
	CategoryLabel string
	OriginalText  string
	AudioPath     string
	PhotoPaths    []string
}

// NotesClient talks to the notes API. It is safe for concurrent use.
type NotesClient struct {
	baseURL  *url.URL
	http     *http.Client
	deviceID string
	secret   []byte
	tokenTTL time.Duration
	log      logging.Logger
}

type Option func(*NotesClient)

func WithHTTPClient(c *http.Client) Option {
	return func(n *NotesClient) { n.http = c }
}

func WithTimeout(d time.Duration) Option {
	return func(n *NotesClient) {
		if d > 0 {
			n.http.Timeout = d
		}
	}
}

// WithAuth makes every request carry a freshly minted bearer token for
// deviceID. An empty secret disables authentication.
func WithAuth(deviceID string, secret []byte) Option {
	return func(n *NotesClient) {
		n.deviceID = deviceID
		n.secret = secret
	}
}

func WithLogger(l logging.Logger) Option {
	return func(n *NotesClient) { n.log = l }
}

func New(baseURL string, opts ...Option) (*NotesClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %w", common.ErrValidation, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", common.ErrValidation, baseURL)
	}

	c := &NotesClient{
		baseURL:  u,
		http:     &http.Client{Timeout: DefaultTimeout},
		tokenTTL: defaultTokenTTL,
		log:      logging.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Upload creates a note on the server with its media.
func (c *NotesClient) Upload(ctx context.Context, req UploadRequest) (*NoteResponse, error) {
	audio := ""
	if req.AudioPath != "" {
		if ok, _ := filex.Exists(req.AudioPath); ok {
			audio = req.AudioPath
		} else {
			c.log.Warn(ctx, "audio file missing, uploading without it", "path", req.AudioPath)
		}
	}
	var photos []string
	for _, p := range req.PhotoPaths {
		if p == "" {
			continue
		}
		if ok, _ := filex.Exists(p); ok {
			photos = append(photos, p)
		} else {
			c.log.Warn(ctx, "photo missing, skipped", "path", p)
		}
	}

	category := req.CategoryLabel
	if strings.TrimSpace(category) == "" {
		category = common.DefaultCategoryLabel
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, req.Title, category, req.OriginalText, audio, photos)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	httpReq, err := c.newRequest(ctx, http.MethodPost, "notes", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out NoteResponse
	if err := c.do(httpReq, &out); err != nil {
		_ = pr.Close()
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("server returned a note without id")
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, title, category, originalText, audio string, photos []string) error {
	if err := mw.WriteField("title", title); err != nil {
		return err
	}
	if err := mw.WriteField("categoryLabel", category); err != nil {
		return err
	}
	if strings.TrimSpace(originalText) != "" {
		if err := mw.WriteField("originalText", originalText); err != nil {
			return err
		}
	}
	if audio != "" {
		if err := copyFilePart(mw, "audio", audio); err != nil {
			return err
		}
	}
	for _, p := range photos {
		if err := copyFilePart(mw, "photos", p); err != nil {
			return err
		}
	}
	return nil
}

func copyFilePart(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Get fetches the server's view of a note.
func (c *NotesClient) Get(ctx context.Context, id string) (*NoteResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "notes/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out NoteResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartRecognition asks the server to queue a note for recognition.
func (c *NotesClient) StartRecognition(ctx context.Context, id string) (*NoteResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "notes/"+url.PathEscape(id)+"/recognize", nil)
	if err != nil {
		return nil, err
	}

	var out NoteResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *NotesClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if len(c.secret) > 0 {
		token, err := auth.GenerateToken(c.deviceID, c.secret, c.tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a JSON body from any 2xx response into out.
//
// Transport failures and gateway errors wrap common.ErrUnavailable, 404
// wraps common.ErrNotFound and 401 wraps common.ErrUnauthorized.
func (c *NotesClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if netx.IsTransient(err) {
			return fmt.Errorf("%w: %s %s: %w", common.ErrUnavailable, req.Method, req.URL.Path, err)
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: status %d: %s", common.ErrUnavailable, resp.StatusCode, msg)
		default:
			return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("server returned an empty body")
		}
		if netx.IsTransient(err) {
			return fmt.Errorf("%w: read response: %w", common.ErrUnavailable, err)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}
