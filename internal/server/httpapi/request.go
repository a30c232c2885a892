package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const multipartMemory = 8 << 20

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", common.ErrorValidation, name, raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return err
		}
		return fmt.Errorf("%w: malformed request body", common.ErrorValidation)
	}
	return nil
}

// readMessageInput collects the text field and the optional "file" part of
// a multipart or url-encoded form. Text is nil only when the field is
// absent. The returned cleanup closes the upload.
func readMessageInput(w http.ResponseWriter, r *http.Request) (services.MessageInput, func(), error) {
	var in services.MessageInput
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, noop, fmt.Errorf("%w: upload exceeds %d bytes", common.ErrorValidation, tooLarge.Limit)
		}
		return in, noop, fmt.Errorf("%w: malformed form", common.ErrorValidation)
	}

	// a present but empty text field is kept so an update can clear it
	if _, ok := r.Form["text"]; ok {
		text := r.Form.Get("text")
		in.Text = &text
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		in.File = &models.Upload{Name: header.Filename, Body: file}
		return in, func() { closeQuietly(file) }, nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, noop, nil
	default:
		return in, noop, fmt.Errorf("%w: malformed file part", common.ErrorValidation)
	}
}
