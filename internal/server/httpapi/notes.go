package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/server/services"
	"github.com/gorilla/mux"
)

func (a *API) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := r.MultipartForm
	in := services.CreateNoteInput{
		Title:         formValue(form, "title"),
		CategoryLabel: formValue(form, "categoryLabel"),
		OriginalText:  formValue(form, "originalText"),
	}

	var files []io.Closer
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	if fh := firstFile(form, "audio"); fh != nil {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "cannot read audio")
			return
		}
		files = append(files, f)
		in.Audio = &services.Upload{Filename: fh.Filename, Content: f}
	}

	for _, fh := range allFiles(form, "photos", "photos[]") {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "cannot read photo")
			return
		}
		files = append(files, f)
		in.Photos = append(in.Photos, services.Upload{Filename: fh.Filename, Content: f})
	}

	note, err := a.svc.CreateNote(r.Context(), in)
	if err != nil {
		a.fail(w, r, "create note", err)
		return
	}

	w.Header().Set("Location", "/notes/"+note.ID)
	respondJSON(w, http.StatusCreated, note)
}

func (a *API) handleStartRecognition(w http.ResponseWriter, r *http.Request) {
	note, err := a.svc.StartRecognition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, "start recognition", err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}

func (a *API) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := a.svc.GetNote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, "get note", err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}

func (a *API) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fh := firstFile(r.MultipartForm, "audio")
	if fh == nil || fh.Size == 0 {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer f.Close()

	res, err := a.svc.Transcribe(r.Context(), services.Upload{Filename: fh.Filename, Content: f},
		formValue(r.MultipartForm, "language"))
	if err != nil {
		a.log.Warn(r.Context(), "transcription failed", "error", err)
		respondError(w, http.StatusBadRequest, "Transcription failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	switch {
	case code == http.StatusInternalServerError:
		a.log.Error(r.Context(), op+" failed", "error", err)
		respondError(w, code, "internal error")
	case errors.Is(err, common.ErrNotFound):
		respondError(w, code, "note not found")
	default:
		respondError(w, code, err.Error())
	}
}

func formValue(form *multipart.Form, key string) string {
	for k, v := range form.Value {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func firstFile(form *multipart.Form, key string) *multipart.FileHeader {
	if files := allFiles(form, key); len(files) > 0 {
		return files[0]
	}
	return nil
}

// allFiles collects the file parts whose field name matches any of keys,
// ignoring case.
func allFiles(form *multipart.Form, keys ...string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for k, v := range form.File {
		for _, key := range keys {
			if strings.EqualFold(k, key) {
				out = append(out, v...)
				break
			}
		}
	}
	return out
}
